// Package ussd implements the USSD menu state machine. The gateway sends the
// caller's whole input history on every request, so each call replays that
// history from the root menu; nothing but the language preference is kept
// between calls.
package ussd

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/catalog"
	"github.com/sells-group/sokoprice/internal/confidence"
	"github.com/sells-group/sokoprice/internal/i18n"
	"github.com/sells-group/sokoprice/internal/metrics"
	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/phone"
	"github.com/sells-group/sokoprice/internal/prices"
	"github.com/sells-group/sokoprice/internal/sms"
)

// Request is one gateway callback.
type Request struct {
	SessionID   string
	ServiceCode string
	PhoneNumber string
	Text        string
}

// Prices is the price service as seen by the menus.
type Prices interface {
	Latest(ctx context.Context, cropID, marketID string) (*prices.Quote, error)
	SubmitFromPhone(ctx context.Context, phoneNumber, cropID, marketID string, price float64) (*model.PriceReport, error)
}

// Catalog supplies the ordered crop and market menus.
type Catalog interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// Languages resolves and stores caller language preferences.
type Languages interface {
	Get(ctx context.Context, phone string) model.Language
	Set(ctx context.Context, phone string, lang model.Language) error
}

// Options configures a Handler.
type Options struct {
	CountryCode string
	Thresholds  confidence.Thresholds
	Location    *time.Location
	// SMSTimeout bounds a background price SMS, which outlives the request.
	SMSTimeout time.Duration
}

// DefaultSMSTimeout bounds a price SMS when Options leaves it unset.
const DefaultSMSTimeout = 30 * time.Second

// Handler answers USSD gateway callbacks.
type Handler struct {
	prices     Prices
	catalog    Catalog
	languages  Languages
	sender     sms.Sender
	country    string
	thresholds confidence.Thresholds
	loc        *time.Location
	smsTimeout time.Duration
	outbox     sync.WaitGroup

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewHandler wires the menus to their collaborators.
func NewHandler(p Prices, cat Catalog, langs Languages, sender sms.Sender, opts Options) *Handler {
	if opts.CountryCode == "" {
		opts.CountryCode = phone.DefaultCountryCode
	}
	if opts.Thresholds.Validate() != nil {
		opts.Thresholds = confidence.DefaultThresholds()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SMSTimeout <= 0 {
		opts.SMSTimeout = DefaultSMSTimeout
	}
	return &Handler{
		prices:     p,
		catalog:    cat,
		languages:  langs,
		sender:     sender,
		country:    opts.CountryCode,
		thresholds: opts.Thresholds,
		loc:        opts.Location,
		smsTimeout: opts.SMSTimeout,
		nowFunc:    time.Now,
	}
}

// Top-level menu choices. flowRoot is the empty history.
const (
	flowRoot     = ""
	flowCheck    = "1"
	flowSubmit   = "2"
	flowLanguage = "3"
)

// session is the per-request view of the caller.
type session struct {
	phone string
	lang  model.Language
	snap  *catalog.Snapshot
}

// Handle returns the response line for req. It always returns a non-empty
// line starting with "CON " or "END ", including when a collaborator fails
// or panics.
func (h *Handler) Handle(ctx context.Context, req Request) (resp string) {
	parts := splitInput(req.Text)
	flow := flowRoot
	if len(parts) > 0 {
		flow = parts[0]
	}
	log := zap.L().With(
		zap.String("component", "ussd"),
		zap.String("session_id", req.SessionID),
		zap.String("flow", flow),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("ussd: panic while handling request", zap.Any("panic", r), zap.Stack("stack"))
			resp = end(i18n.T(i18n.GenericError, model.DefaultLanguage))
		}
		outcome := "con"
		if strings.HasPrefix(resp, "END ") {
			outcome = "end"
		}
		metrics.USSDRequests.WithLabelValues(flowLabel(flow), outcome).Inc()
	}()

	s := &session{phone: phone.Normalize(req.PhoneNumber, h.country)}
	s.lang = h.languages.Get(ctx, s.phone)

	var err error
	switch flow {
	case flowRoot:
		return con(i18n.T(i18n.Welcome, s.lang))
	case flowCheck, flowSubmit:
		if s.snap, err = h.catalog.Snapshot(ctx); err != nil {
			break
		}
		if flow == flowCheck {
			resp, err = h.checkPrice(ctx, s, parts[1:])
		} else {
			resp, err = h.submitPrice(ctx, s, parts[1:])
		}
	case flowLanguage:
		resp, err = h.language(ctx, s, parts[1:])
	default:
		return end(i18n.T(i18n.InvalidInput, s.lang))
	}

	if err != nil {
		log.Error("ussd: request failed", zap.String("text", req.Text), zap.Error(err))
		return end(i18n.T(i18n.GenericError, s.lang))
	}
	if resp == "" {
		return end(i18n.T(i18n.InvalidInput, s.lang))
	}
	return resp
}

// checkPrice walks crop -> market -> price screen -> SMS copy or back.
func (h *Handler) checkPrice(ctx context.Context, s *session, p []string) (string, error) {
	// "0" on the price screen goes back to the market list; drop it together
	// with the market choice it undoes.
	for len(p) >= 3 && p[2] == "0" {
		p = append(p[:1:1], p[3:]...)
	}

	if len(p) == 0 {
		return con(h.cropMenu(s)), nil
	}
	crop, ok := s.snap.CropAt(selection(p[0]))
	if !ok {
		return con(invalidThen(s, h.cropMenu(s))), nil
	}

	if len(p) == 1 {
		return con(h.marketMenu(s)), nil
	}
	market, ok := s.snap.MarketAt(selection(p[1]))
	if !ok {
		return con(invalidThen(s, h.marketMenu(s))), nil
	}

	switch len(p) {
	case 2:
		q, err := h.prices.Latest(ctx, crop.ID, market.ID)
		if err != nil {
			return "", err
		}
		if q == nil {
			return end(i18n.T(i18n.NoPriceData, s.lang)), nil
		}
		return con(h.priceScreen(s, crop, market, q) + "\n" + i18n.T(i18n.GetSMS, s.lang)), nil

	case 3:
		if p[2] != "1" {
			return end(i18n.T(i18n.InvalidInput, s.lang)), nil
		}
		q, err := h.prices.Latest(ctx, crop.ID, market.ID)
		if err != nil {
			return "", err
		}
		if q == nil {
			return end(i18n.T(i18n.NoPriceData, s.lang)), nil
		}
		label := i18n.ConfidenceLabel(q.Confidence.Score, h.thresholds, model.LanguageEnglish)
		msg := i18n.PriceSMS(crop.Name, market.Name, q.Report.Price, crop.Unit, label)
		h.sendInBackground(ctx, s.phone, msg)
		return end(i18n.T(i18n.SMSSent, s.lang)), nil
	}

	return end(i18n.T(i18n.InvalidInput, s.lang)), nil
}

// sendInBackground delivers msg after the response has gone out. The send
// keeps the request's values but not its cancellation, and is bounded by
// smsTimeout.
func (h *Handler) sendInBackground(ctx context.Context, to, msg string) {
	ctx = context.WithoutCancel(ctx)
	h.outbox.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, h.smsTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("ussd: panic while sending price sms", zap.Any("panic", r))
			}
		}()

		if res := h.sender.Send(ctx, to, msg); !res.Success {
			zap.L().Warn("ussd: price sms not delivered",
				zap.String("phone", to),
				zap.String("error", res.Error),
			)
		}
	})
}

// Wait blocks until every background price SMS has finished.
func (h *Handler) Wait() {
	h.outbox.Wait()
}

// submitPrice walks crop -> market -> price -> confirm -> submit or cancel.
func (h *Handler) submitPrice(ctx context.Context, s *session, p []string) (string, error) {
	if len(p) == 0 {
		return con(h.cropMenu(s)), nil
	}
	crop, ok := s.snap.CropAt(selection(p[0]))
	if !ok {
		return con(invalidThen(s, h.cropMenu(s))), nil
	}

	if len(p) == 1 {
		return con(h.marketMenu(s)), nil
	}
	market, ok := s.snap.MarketAt(selection(p[1]))
	if !ok {
		return con(invalidThen(s, h.marketMenu(s))), nil
	}

	if len(p) == 2 {
		return con(i18n.T(i18n.EnterPrice, s.lang)), nil
	}
	price, ok := parsePrice(p[2])
	if !ok {
		return con(invalidThen(s, i18n.T(i18n.EnterPrice, s.lang))), nil
	}

	switch len(p) {
	case 3:
		return con(fmt.Sprintf("%s @ %s\n%s\n%s",
			crop.DisplayName(s.lang), market.Name, i18n.FormatPrice(price), i18n.T(i18n.ConfirmSubmission, s.lang))), nil

	case 4:
		if p[3] != "1" {
			return end(i18n.T(i18n.SubmissionCancelled, s.lang)), nil
		}
		if _, err := h.prices.SubmitFromPhone(ctx, s.phone, crop.ID, market.ID, price); err != nil {
			return "", err
		}
		return end(i18n.T(i18n.SubmissionSuccess, s.lang)), nil
	}

	return end(i18n.T(i18n.InvalidInput, s.lang)), nil
}

// language shows the language menu and stores the choice.
func (h *Handler) language(ctx context.Context, s *session, p []string) (string, error) {
	if len(p) == 0 {
		return con(i18n.T(i18n.SelectLanguage, s.lang)), nil
	}
	if len(p) > 1 {
		return end(i18n.T(i18n.InvalidInput, s.lang)), nil
	}

	var lang model.Language
	switch p[0] {
	case "1":
		lang = model.LanguageEnglish
	case "2":
		lang = model.LanguageSwahili
	default:
		return end(i18n.T(i18n.InvalidInput, s.lang)), nil
	}
	if err := h.languages.Set(ctx, s.phone, lang); err != nil {
		return "", err
	}
	return end(i18n.T(i18n.LanguageSet, lang)), nil
}

func (h *Handler) cropMenu(s *session) string {
	return i18n.Menu(i18n.T(i18n.SelectCrop, s.lang), s.snap.CropNames(s.lang))
}

func (h *Handler) marketMenu(s *session) string {
	return i18n.Menu(i18n.T(i18n.SelectMarket, s.lang), s.snap.MarketNames())
}

func (h *Handler) priceScreen(s *session, crop model.Crop, market model.Market, q *prices.Quote) string {
	return fmt.Sprintf("%s - %s\n%s %s %s\n%s: %s\n%s: %s",
		crop.DisplayName(s.lang), market.Name,
		i18n.FormatPrice(q.Report.Price), i18n.T(i18n.Per, s.lang), crop.Unit,
		i18n.T(i18n.Updated, s.lang), i18n.FormatUpdated(q.Report.Date, h.nowFunc(), h.loc, s.lang),
		i18n.T(i18n.ConfidenceWord, s.lang), i18n.ConfidenceLabel(q.Confidence.Score, h.thresholds, s.lang),
	)
}

func invalidThen(s *session, prompt string) string {
	return i18n.T(i18n.InvalidInput, s.lang) + "\n" + prompt
}

func con(body string) string { return "CON " + body }
func end(body string) string { return "END " + body }

// splitInput splits the gateway's "*"-joined history, dropping empty
// segments.
func splitInput(text string) []string {
	var parts []string
	for _, seg := range strings.Split(text, "*") {
		if seg = strings.TrimSpace(seg); seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

// selection parses a 1-based menu choice; anything else yields 0.
func selection(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func parsePrice(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

func flowLabel(flow string) string {
	switch flow {
	case flowRoot:
		return "root"
	case flowCheck:
		return "check"
	case flowSubmit:
		return "submit"
	case flowLanguage:
		return "language"
	}
	return "invalid"
}
