package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/georgex8001/voting-fun/decryption"
	"github.com/georgex8001/voting-fun/health"
	"github.com/georgex8001/voting-fun/metrics"
	"github.com/georgex8001/voting-fun/tx"
)

const shutdownTimeout = 10 * time.Second

var (
	errUnknownCommand = errors.New("unknown command")
	errUsage          = errors.New("wrong number of arguments")
	errInvalidPollID  = errors.New("invalid poll id")
)

// command is one subcommand of the client.
type command struct {
	name    string
	args    string
	summary string
	// nargs is the exact number of arguments, or -minArgs for "at least".
	nargs int
	run   func(a *app, ctx context.Context, w io.Writer, args []string) error
}

var commands = []command{
	{name: "watch", summary: "probe the gateway continuously and serve metrics", run: (*app).watch},
	{name: "status", summary: "probe the gateway once and report which contract is in use", run: (*app).status},
	{name: "polls", summary: "list the polls of the contract in use", run: (*app).listPolls},
	{name: "poll", args: "<id>", nargs: 1, summary: "show a poll and its results", run: (*app).showPoll},
	{name: "create", args: "<duration> <title> <option>...", nargs: -4, summary: "create a poll, e.g. create 24h Lunch pizza sushi", run: (*app).createPoll},
	{name: "vote", args: "<id> <option>", nargs: 2, summary: "vote for an option index", run: (*app).vote},
	{name: "decrypt", args: "<id>", nargs: 1, summary: "decrypt a finished poll and print its results", run: (*app).decrypt},
	{name: "end", args: "<id>", nargs: 1, summary: "end a confidential poll early", run: (*app).endPoll},
	{name: "cancel", args: "<id>", nargs: 1, summary: "cancel an expired confidential poll", run: (*app).cancelPoll},
	{name: "retry", args: "<id>", nargs: 1, summary: "ask the gateway to decrypt a poll again", run: (*app).retryDecryption},
}

func printCommands(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, cmd := range commands {
		fmt.Fprintf(tw, "  %s %s\t%s\n", cmd.name, cmd.args, cmd.summary)
	}
	tw.Flush()
}

// run dispatches args to a command. No arguments means watch.
func (a *app) run(ctx context.Context, w io.Writer, args []string) error {
	if len(args) == 0 {
		args = []string{"watch"}
	}
	name, rest := args[0], args[1:]

	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		if (cmd.nargs >= 0 && len(rest) != cmd.nargs) || (cmd.nargs < 0 && len(rest) < -cmd.nargs) {
			return fmt.Errorf("%w: usage: %s %s", errUsage, cmd.name, cmd.args)
		}
		return cmd.run(a, ctx, w, rest)
	}
	return fmt.Errorf("%w %q", errUnknownCommand, name)
}

// resolve runs one probe cycle so the router sees a current gateway status.
func (a *app) resolve(ctx context.Context) health.Status {
	status := a.monitor.RunCycle(ctx)
	binding := a.router.ResolveBinding()
	a.logger.Debug().
		Str("gateway", status.String()).
		Str("binding", binding.Kind().String()).
		Str("contract", binding.Address().Hex()).
		Msg("Resolved contract binding")
	return status
}

// account is the signing account, if a wallet is configured.
func (a *app) account() (common.Address, bool) {
	if a.signer == nil {
		return common.Address{}, false
	}
	return a.signer.Account()
}

func parsePollID(raw string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w %q", errInvalidPollID, raw)
	}
	return id, nil
}

/* -------------------- Commands -------------------- */

func (a *app) watch(ctx context.Context, _ io.Writer, _ []string) error {
	metricsServer, err := setupMetricsServer(a.logger, a.config.Metrics.PrometheusAddr)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	setupPprofServer(ctx, a.logger, a.config.Metrics.PprofAddr)
	if err := a.setupOperationalServer(ctx); err != nil {
		return err
	}

	if a.mirror != nil {
		detach := a.mirror.Attach(a.monitor)
		defer detach()
	}

	unsubscribe := a.monitor.Subscribe(func(status health.Status) {
		binding := a.router.ResolveBinding()
		a.logger.Info().
			Str("gateway", status.String()).
			Str("binding", binding.Kind().String()).
			Str("contract", binding.Address().Hex()).
			Msg("Contract binding in use")
	})
	defer unsubscribe()

	a.monitor.Start(ctx)

	leaderboard := metrics.NewLeaderboardPublisher(a.logger, a.pool, 0)
	if err := leaderboard.Start(ctx); err != nil {
		return err
	}
	defer leaderboard.Stop()

	a.logger.Info().
		Str("gateway_url", a.config.Network.GatewayURL).
		Dur("probe_interval", a.config.Health.ProbeInterval).
		Str("metrics_addr", a.config.Metrics.PrometheusAddr).
		Str("pprof_addr", a.config.Metrics.PprofAddr).
		Bool("redis_mirror", a.mirror != nil).
		Bool("leader_election", a.elector != nil).
		Msg("Watching gateway health")

	<-ctx.Done()

	a.logger.Info().Msg("Shutting down...")
	a.monitor.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("Metrics server forced to shutdown")
		}
	}
	return nil
}

func (a *app) status(ctx context.Context, w io.Writer, _ []string) error {
	status := a.resolve(ctx)
	binding := a.router.ResolveBinding()

	fmt.Fprintf(w, "gateway:  %s (%s)\n", status, a.config.Network.GatewayURL)
	fmt.Fprintf(w, "contract: %s %s\n", binding.Kind(), binding.Address().Hex())

	if a.relayer != nil {
		relayerStatus := "up"
		if err := a.relayer.CheckHealth(ctx); err != nil {
			relayerStatus = "down: " + err.Error()
		}
		fmt.Fprintf(w, "relayer:  %s\n", relayerStatus)
	}

	if a.mirror != nil {
		mirrored, err := a.mirror.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("reading mirrored status: %w", err)
		}
		fmt.Fprintf(w, "mirrored: %s\n", mirrored)
	}
	if a.elector != nil {
		role := "follower"
		if a.elector.IsLeader() {
			role = "leader"
		}
		fmt.Fprintf(w, "prober:   %s (lease held by %s)\n", role, a.elector.LeaderInstanceID(ctx))
	}

	if account, ok := a.account(); ok {
		fmt.Fprintf(w, "account:  %s\n", account.Hex())
	} else {
		fmt.Fprintln(w, "account:  none (read-only)")
	}
	return nil
}

func (a *app) listPolls(ctx context.Context, w io.Writer, _ []string) error {
	a.resolve(ctx)
	list, err := a.polls.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "no polls")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tOPTIONS\tSTATE\tENDS\tRESULTS")
	for _, poll := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			poll.ID, poll.Title, len(poll.Options), pollState(poll.IsActive, poll.Expired(now)),
			poll.EndTime.UTC().Format(time.RFC3339), resultsState(poll.ResultsDecrypted))
	}
	return tw.Flush()
}

func (a *app) showPoll(ctx context.Context, w io.Writer, args []string) error {
	id, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	a.resolve(ctx)

	poll, err := a.polls.Get(ctx, id)
	if err != nil {
		return err
	}
	results, err := a.polls.Results(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "poll %s: %s\n", poll.ID, poll.Title)
	fmt.Fprintf(w, "creator: %s\n", poll.Creator.Hex())
	fmt.Fprintf(w, "state:   %s, ends %s\n", pollState(poll.IsActive, poll.Expired(time.Now())), poll.EndTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "results: %s\n", resultsState(poll.ResultsDecrypted))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, option := range poll.Options {
		fmt.Fprintf(tw, "  [%d]\t%s\t%d\n", i, option, results[i])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if account, ok := a.account(); ok {
		voted, err := a.polls.HasVoted(ctx, id, account)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "voted:   %t\n", voted)
	}
	return nil
}

func (a *app) createPoll(ctx context.Context, w io.Writer, args []string) error {
	duration, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", args[0], err)
	}
	a.resolve(ctx)

	created, err := a.polls.Create(ctx, args[1], args[2:], duration)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "created poll %s %q, ends %s\n", created.PollID, created.Title, created.EndTime.UTC().Format(time.RFC3339))
	return nil
}

func (a *app) vote(ctx context.Context, w io.Writer, args []string) error {
	id, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	option, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid option %q: %w", args[1], err)
	}
	a.resolve(ctx)

	result, err := a.polls.Vote(ctx, id, option)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "voted for option %d in poll %s (tx %s)\n", option, id, result.Hash.Hex())
	return nil
}

func (a *app) decrypt(ctx context.Context, w io.Writer, args []string) error {
	id, err := parsePollID(args[0])
	if err != nil {
		return err
	}
	a.resolve(ctx)

	var (
		lastStatus   decryption.Status
		lastProgress = -1
	)
	unsubscribe := a.workflow.Subscribe(func(r decryption.Request) {
		if r.Status == decryption.StatusIdle || (r.Status == lastStatus && r.Progress == lastProgress) {
			return
		}
		lastStatus, lastProgress = r.Status, r.Progress
		fmt.Fprintf(w, "%3d%% %s\n", r.Progress, r.Status)
	})
	defer unsubscribe()

	results, err := a.workflow.RequestDecryption(ctx, id)
	if err != nil {
		return err
	}

	poll, err := a.polls.Get(ctx, id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, count := range results {
		fmt.Fprintf(tw, "  [%d]\t%s\t%d\n", i, poll.Options[i], count)
	}
	return tw.Flush()
}

func (a *app) endPoll(ctx context.Context, w io.Writer, args []string) error {
	return a.lifecycle(ctx, w, args[0], "ended", a.polls.End)
}

func (a *app) cancelPoll(ctx context.Context, w io.Writer, args []string) error {
	return a.lifecycle(ctx, w, args[0], "cancelled", a.polls.CancelExpired)
}

func (a *app) retryDecryption(ctx context.Context, w io.Writer, args []string) error {
	return a.lifecycle(ctx, w, args[0], "requested decryption again for", a.polls.RetryDecryption)
}

func (a *app) lifecycle(
	ctx context.Context,
	w io.Writer,
	rawID string,
	verb string,
	write func(context.Context, *big.Int) (*tx.Result, error),
) error {
	id, err := parsePollID(rawID)
	if err != nil {
		return err
	}
	a.resolve(ctx)

	result, err := write(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s poll %s (tx %s)\n", verb, id, result.Hash.Hex())
	return nil
}

func pollState(active, expired bool) string {
	switch {
	case !active:
		return "closed"
	case expired:
		return "expired"
	default:
		return "open"
	}
}

func resultsState(decrypted bool) string {
	if decrypted {
		return "public"
	}
	return "encrypted"
}
