package contract

import (
	"sync"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/georgex8001/voting-fun/endpoint"
	"github.com/georgex8001/voting-fun/health"
	"github.com/georgex8001/voting-fun/wallet"
)

// StatusSource reports the current gateway status. *health.Monitor implements it.
type StatusSource interface {
	Status() health.Status
}

// RouterConfig contains configuration for creating a Router.
type RouterConfig struct {
	Status       StatusSource
	Confidential *ConfidentialBinding
	Plain        *PlainBinding
	Pool         *endpoint.Pool

	// Wallet may be nil; writes then fail with ErrNoSigner.
	Wallet wallet.Wallet
	Logger polylog.Logger
}

// Router resolves which deployment to use for the current gateway status
// and hands out read and write handles bound to it.
// The only state it owns is the connected wallet.
type Router struct {
	status       StatusSource
	confidential *ConfidentialBinding
	plain        *PlainBinding
	pool         *endpoint.Pool
	logger       polylog.Logger

	walletMu sync.RWMutex
	wallet   wallet.Wallet
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		status:       cfg.Status,
		confidential: cfg.Confidential,
		plain:        cfg.Plain,
		pool:         cfg.Pool,
		wallet:       cfg.Wallet,
		logger:       cfg.Logger.With("component", "contract_router"),
	}
}

// ResolveBinding returns the confidential binding only while the gateway is
// up. Unknown and down both resolve to the plain binding.
func (r *Router) ResolveBinding() Binding {
	if r.status.Status() == health.StatusUp {
		return r.confidential
	}
	return r.plain
}

// Bindings returns both deployments.
func (r *Router) Bindings() (*ConfidentialBinding, *PlainBinding) {
	return r.confidential, r.plain
}

// SetWallet connects or, with nil, disconnects the signing wallet.
func (r *Router) SetWallet(w wallet.Wallet) {
	r.walletMu.Lock()
	defer r.walletMu.Unlock()
	r.wallet = w
}

// ReadHandle returns a read handle for the currently resolved binding.
func (r *Router) ReadHandle() *ReadHandle {
	return r.ReadHandleFor(r.ResolveBinding())
}

// ReadHandleFor returns a read handle for b through the endpoint pool.
func (r *Router) ReadHandleFor(b Binding) *ReadHandle {
	return &ReadHandle{binding: b, pool: r.pool}
}

// WriteHandle returns a write handle for the currently resolved binding.
func (r *Router) WriteHandle() (*WriteHandle, error) {
	return r.WriteHandleFor(r.ResolveBinding())
}

// WriteHandleFor returns a write handle for b, or ErrNoSigner when no wallet
// is connected.
func (r *Router) WriteHandleFor(b Binding) (*WriteHandle, error) {
	r.walletMu.RLock()
	w := r.wallet
	r.walletMu.RUnlock()

	if w == nil {
		return nil, ErrNoSigner
	}
	from, connected := w.Account()
	if !connected {
		return nil, ErrNoSigner
	}

	r.logger.Debug().
		Str("binding", b.Kind().String()).
		Str("from", from.Hex()).
		Msg("Acquired write handle")

	return &WriteHandle{binding: b, wallet: w, from: from}, nil
}
