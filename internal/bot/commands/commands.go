package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/penalty-kitty/internal/kitty"
	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/reconcile"
	"github.com/jensholdgaard/penalty-kitty/internal/schedule"
	"github.com/jensholdgaard/penalty-kitty/internal/spond"
	"github.com/jensholdgaard/penalty-kitty/internal/telemetry"
)

// Settings are the per-deployment values the handlers need.
type Settings struct {
	Admins         []string
	GroupID        string
	NoReplyPenalty decimal.Decimal
	Currency       string
}

// Handlers process Discord interactions.
type Handlers struct {
	kitty    *kitty.Manager
	runner   reconcile.Runner
	source   schedule.Source
	settings Settings
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(mgr *kitty.Manager, runner reconcile.Runner, source schedule.Source, settings Settings, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		kitty:    mgr,
		runner:   runner,
		source:   source,
		settings: settings,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/penalty-kitty/internal/bot/commands"),
	}
}

func playerOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "player",
		Description: desc,
		Required:    true,
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "penalties",
			Description: "Show open penalties per player",
		},
		{
			Name:        "penalty",
			Description: "Assign a penalty (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				playerOption("Player name, created if unknown"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Catalog entry or free text",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "amount",
					Description: "Amount, required when the reason is not in the catalog",
					Required:    false,
				},
			},
		},
		{
			Name:        "paid",
			Description: "Mark all open penalties of a player as paid (admin only)",
			Options:     []*discordgo.ApplicationCommandOption{playerOption("Player name or part of it")},
		},
		{
			Name:        "detail",
			Description: "List every penalty of a player",
			Options:     []*discordgo.ApplicationCommandOption{playerOption("Player name or part of it")},
		},
		{
			Name:        "catalog",
			Description: "Show the penalty catalog",
		},
		{
			Name:        "catalog-add",
			Description: "Add or update a catalog entry (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Penalty name",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "amount",
					Description: "Amount, e.g. 2,50",
					Required:    true,
				},
			},
		},
		{
			Name:        "catalog-remove",
			Description: "Remove a catalog entry (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Exact penalty name",
					Required:    true,
				},
			},
		},
		{
			Name:        "players",
			Description: "List all players",
		},
		{
			Name:        "sync",
			Description: "Fine unanswered events from the schedule (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "from",
					Description: "Start date, e.g. 01.01.2026",
					Required:    false,
				},
			},
		},
		{
			Name:        "sync-log",
			Description: "Show the most recent sync runs",
		},
		{
			Name:        "history",
			Description: "Show the audit trail of a player",
			Options:     []*discordgo.ApplicationCommandOption{playerOption("Player name or part of it")},
		},
		{
			Name:        "groups",
			Description: "List the groups visible to the scheduling account",
		},
		{
			Name:        "export",
			Description: "Export all penalties as CSV",
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("command", data.Name)),
	)
	defer span.End()

	opts := optionMap(data.Options)
	caller := callerID(i)

	switch data.Name {
	case "penalties":
		h.handlePenalties(ctx, s, i)
	case "detail":
		h.handleDetail(ctx, s, i, opts)
	case "catalog":
		h.handleCatalog(ctx, s, i)
	case "players":
		h.handlePlayers(ctx, s, i)
	case "sync-log":
		h.handleSyncLog(ctx, s, i)
	case "history":
		h.handleHistory(ctx, s, i, opts)
	case "groups":
		h.handleGroups(ctx, s, i)
	case "export":
		h.handleExport(ctx, s, i)
	case "penalty", "paid", "catalog-add", "catalog-remove", "sync":
		if !IsAdmin(h.settings.Admins, caller) {
			respond(s, i, "⛔ Only admins may do that.")
			return
		}
		switch data.Name {
		case "penalty":
			h.handlePenalty(ctx, s, i, opts, caller)
		case "paid":
			h.handlePaid(ctx, s, i, opts, caller)
		case "catalog-add":
			h.handleCatalogAdd(ctx, s, i, opts)
		case "catalog-remove":
			h.handleCatalogRemove(ctx, s, i, opts)
		case "sync":
			h.handleSync(ctx, s, i, opts)
		}
	default:
		respond(s, i, "Unknown command")
	}
}

func (h *Handlers) handlePenalties(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	o, err := h.kitty.Overview(ctx)
	if err != nil {
		h.fail(ctx, s, i, "listing penalties", err)
		return
	}
	respond(s, i, formatOverview(o, h.settings.Currency))
}

func (h *Handlers) handlePenalty(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options, caller string) {
	a := kitty.Assignment{
		PlayerName: opts.value("player"),
		Reason:     opts.value("reason"),
		AssignedBy: caller,
	}
	if raw := opts.value("amount"); raw != "" {
		amount, err := money.Parse(raw)
		if err != nil {
			respond(s, i, "❌ "+err.Error())
			return
		}
		a.Amount = &amount
	}

	res, err := h.kitty.AssignPenalty(ctx, a)
	if err != nil {
		h.fail(ctx, s, i, "assigning penalty", err)
		return
	}
	respond(s, i, fmt.Sprintf("✅ **%s**: %s (%s)",
		res.Player.Name, res.Penalty.Reason, money.Format(res.Penalty.Amount, h.settings.Currency)))
}

func (h *Handlers) handlePaid(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options, caller string) {
	player, n, err := h.kitty.MarkPaid(ctx, opts.value("player"), caller)
	if err != nil {
		h.fail(ctx, s, i, "marking paid", err)
		return
	}
	if n == 0 {
		respond(s, i, fmt.Sprintf("**%s** has no open penalties.", player.Name))
		return
	}
	respond(s, i, fmt.Sprintf("✅ **%s**: %d penalties marked as paid.", player.Name, n))
}

func (h *Handlers) handleDetail(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) {
	d, err := h.kitty.Detail(ctx, opts.value("player"))
	if err != nil {
		h.fail(ctx, s, i, "loading player", err)
		return
	}
	respond(s, i, formatDetail(d, h.settings.Currency))
}

func (h *Handlers) handleCatalog(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	entries, err := h.kitty.Catalog(ctx)
	if err != nil {
		h.fail(ctx, s, i, "listing catalog", err)
		return
	}
	respond(s, i, formatCatalog(entries, h.settings.Currency))
}

func (h *Handlers) handleCatalogAdd(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) {
	amount, err := money.Parse(opts.value("amount"))
	if err != nil {
		respond(s, i, "❌ "+err.Error())
		return
	}
	entry, err := h.kitty.SetCatalogEntry(ctx, opts.value("name"), amount)
	if err != nil {
		h.fail(ctx, s, i, "updating catalog", err)
		return
	}
	respond(s, i, fmt.Sprintf("✅ Catalog: **%s** = %s", entry.Name, money.Format(entry.Amount, h.settings.Currency)))
}

func (h *Handlers) handleCatalogRemove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) {
	name := opts.value("name")
	removed, err := h.kitty.RemoveCatalogEntry(ctx, name)
	if err != nil {
		h.fail(ctx, s, i, "removing catalog entry", err)
		return
	}
	if !removed {
		respond(s, i, fmt.Sprintf("❌ No catalog entry named **%s**.", name))
		return
	}
	respond(s, i, fmt.Sprintf("🗑️ Removed **%s** from the catalog.", name))
}

func (h *Handlers) handlePlayers(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	players, err := h.kitty.Players(ctx)
	if err != nil {
		h.fail(ctx, s, i, "listing players", err)
		return
	}
	respond(s, i, formatPlayers(players))
}

func (h *Handlers) handleSync(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) {
	if h.settings.GroupID == "" {
		respond(s, i, "❌ No group configured. Use `/groups` and set `spond.group_id`.")
		return
	}
	req := reconcile.Request{GroupID: h.settings.GroupID, PenaltyAmount: h.settings.NoReplyPenalty}
	if raw := opts.value("from"); raw != "" {
		from, err := ParseDate(raw)
		if err != nil {
			respond(s, i, "❌ "+err.Error())
			return
		}
		req.From = from
	}

	// A sync takes longer than the three seconds Discord waits for a reply.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to defer response", slog.Any("error", err))
		return
	}

	start := time.Now()
	res, err := h.runner.Run(ctx, req)
	var msg string
	if err != nil {
		telemetry.LogWithTrace(ctx, h.logger).ErrorContext(ctx, "sync failed", slog.Any("error", err))
		msg = "❌ Sync failed: " + userMessage(err)
	} else {
		h.logger.InfoContext(ctx, "sync finished",
			slog.Int("new_penalties", res.NewPenalties),
			slog.Duration("duration", time.Since(start)),
		)
		msg = formatSync(res, money.Format(req.PenaltyAmount, h.settings.Currency))
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &msg}); err != nil {
		h.logger.ErrorContext(ctx, "failed to edit response", slog.Any("error", err))
	}
}

func (h *Handlers) handleSyncLog(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	runs, err := h.kitty.RecentSyncs(ctx, syncLogLimit)
	if err != nil {
		h.fail(ctx, s, i, "loading sync log", err)
		return
	}
	respond(s, i, formatSyncLog(runs))
}

func (h *Handlers) handleHistory(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) {
	player, events, err := h.kitty.History(ctx, opts.value("player"))
	if err != nil {
		h.fail(ctx, s, i, "loading history", err)
		return
	}
	respond(s, i, formatHistory(player.Name, events, h.settings.Currency))
}

func (h *Handlers) handleGroups(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	groups, err := h.source.Groups(ctx)
	if err != nil {
		h.fail(ctx, s, i, "listing groups", err)
		return
	}
	respond(s, i, formatGroups(groups, h.settings.GroupID))
}

func (h *Handlers) handleExport(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	var buf bytes.Buffer
	n, err := h.kitty.ExportCSV(ctx, &buf)
	if err != nil {
		h.fail(ctx, s, i, "exporting penalties", err)
		return
	}
	if n == 0 {
		respond(s, i, "No penalties to export.")
		return
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("📊 %d penalties", n),
			Files: []*discordgo.File{{
				Name:        "penalties_" + time.Now().UTC().Format("20060102") + ".csv",
				ContentType: "text/csv",
				Reader:      &buf,
			}},
		},
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to send export", slog.Any("error", err))
	}
}

// fail logs err and shows the user a short message.
func (h *Handlers) fail(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, op string, err error) {
	telemetry.LogWithTrace(ctx, h.logger).ErrorContext(ctx, op+" failed", slog.Any("error", err))
	respond(s, i, "❌ "+userMessage(err))
}

// userMessage renders domain errors verbatim and hides everything else.
func userMessage(err error) string {
	switch {
	case errors.Is(err, kitty.ErrUnknownPlayer),
		errors.Is(err, kitty.ErrAmountRequired),
		errors.Is(err, kitty.ErrMissingField),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, reconcile.ErrInvalidWindow),
		errors.Is(err, spond.ErrGroupNotFound):
		return err.Error()
	}
	var apiErr *spond.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("the schedule service answered %d", apiErr.StatusCode)
	}
	return "something went wrong, see the logs"
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) value(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(opt.StringValue())
}

func callerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}
