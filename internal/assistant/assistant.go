package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"djassa/internal/core"
	"djassa/internal/services"
	"djassa/internal/storage"
)

// Store is the persistence the assistant needs: catalogue lookups, chat history and usage logs.
type Store interface {
	ProductFinder
	ListProducts(ctx context.Context, shopID string) ([]core.Product, error)
	AddChatMessage(ctx context.Context, shopID, role, content string) (storage.ChatMessage, error)
	RecentChatMessages(ctx context.Context, shopID string, limit int) ([]storage.ChatMessage, error)
	ClearChatMessages(ctx context.Context, shopID string) (int64, error)
	CountChatMessagesSince(ctx context.Context, shopID, role string, since time.Time) (int, error)
	AddChatLog(ctx context.Context, l storage.ChatLog) error
	CountChatLogsSince(ctx context.Context, shopID string, since time.Time) (int, error)
	AddVoiceLog(ctx context.Context, l storage.VoiceLog) error
	CountVoiceLogsSince(ctx context.Context, shopID string, since time.Time) (int, error)
}

// SnapshotSource provides the shop figures prompts are built from.
type SnapshotSource interface {
	Snapshot(ctx context.Context, shop core.Shop) (services.Snapshot, error)
}

const (
	defaultChatQuota  = 20
	defaultVoiceQuota = 50
	maxTranscript     = 500
	maxChatbotMessage = 1000
	maxChatMessage    = 500
)

// Assistant answers merchants and records transactions on their behalf.
// A nil model puts it in fallback mode: replies are canned and nothing is detected.
type Assistant struct {
	model     Model
	store     Store
	snapshots SnapshotSource
	detector  *IntentDetector
	recorder  *AutoRecorder
	now       func() time.Time
}

func New(model Model, store Store, snapshots SnapshotSource, detector *IntentDetector, recorder *AutoRecorder) *Assistant {
	return &Assistant{
		model:     model,
		store:     store,
		snapshots: snapshots,
		detector:  detector,
		recorder:  recorder,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a model is configured.
func (a *Assistant) Enabled() bool { return a.model != nil }

type MessageRequest struct {
	Message    string
	Language   Language
	History    []Turn
	AutoRecord bool
	IP         string
}

type MessageReply struct {
	Response            string               `json:"response"`
	Suggestions         []string             `json:"suggestions"`
	ProactiveAdvice     *string              `json:"proactive_advice,omitempty"`
	TransactionRecorded *TransactionRecorded `json:"transaction_recorded,omitempty"`
}

func defaultSuggestions(lang Language) []string {
	if lang.english() {
		return []string{"My sales today", "Savings tips", "Overdue debts"}
	}
	return []string{"Mes ventes aujourd'hui", "Conseils pour économiser", "Mes dettes en retard"}
}

func chatQuota(shop core.Shop) int {
	if shop.Features.ChatQuota > 0 {
		return shop.Features.ChatQuota
	}
	return defaultChatQuota
}

func validateMessage(message string, limit int) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(message)); n < 1 || n > limit {
		return core.Invalid("message", fmt.Sprintf("le message doit contenir entre 1 et %d caractères", limit))
	}
	return nil
}

// Message runs the chatbot: quota, context prompt, optional auto-record, proactive advice.
// Model failures become fallback replies; only storage failures are returned as errors.
func (a *Assistant) Message(ctx context.Context, shop core.Shop, req MessageRequest) (MessageReply, error) {
	if err := validateMessage(req.Message, maxChatbotMessage); err != nil {
		return MessageReply{}, err
	}
	start := time.Now()
	lang := req.Language

	quota := chatQuota(shop)
	used, err := a.store.CountChatLogsSince(ctx, shop.ID, core.MonthStart(a.now()))
	if err != nil {
		return MessageReply{}, err
	}
	if used >= quota {
		return MessageReply{
			Response:    fmt.Sprintf("Tu as atteint ton quota de messages (%d/mois). Passe Premium pour plus de conversations ! 💎", quota),
			Suggestions: []string{"Voir mes ventes", "Gérer mon stock", "Mes dettes"},
		}, nil
	}

	logReply := func(bot string, success bool) {
		err := a.store.AddChatLog(ctx, storage.ChatLog{
			ShopID:         shop.ID,
			UserMessage:    req.Message,
			BotResponse:    bot,
			Success:        success,
			ResponseTimeMs: time.Since(start).Milliseconds(),
			IP:             req.IP,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to store chat log", "shop_id", shop.ID, "error", err)
		}
	}

	if a.model == nil {
		slog.WarnContext(ctx, "Chatbot called without model configured", "shop_id", shop.ID)
		logReply("API non configurée", false)
		return MessageReply{
			Response:    "Désolée, je rencontre un problème technique. Vérifie la configuration de l'API ! 🙏",
			Suggestions: defaultSuggestions(French),
		}, nil
	}

	retryReply := MessageReply{
		Response:    "Désolée, j'ai rencontré un problème technique. Pouvez-vous réessayer ? 🙏",
		Suggestions: defaultSuggestions(French),
	}

	snap, err := a.snapshots.Snapshot(ctx, shop)
	if err != nil {
		logReply(err.Error(), false)
		return retryReply, nil
	}

	raw, err := a.model.Generate(ctx, chatbotPrompt(lang, snap, req.History, req.Message))
	if err != nil {
		slog.ErrorContext(ctx, "Chatbot model call failed", "shop_id", shop.ID, "error", err)
		logReply(err.Error(), false)
		return retryReply, nil
	}

	reply, err := parseChatbotReply(raw, lang)
	if err != nil {
		logReply("Erreur JSON: "+err.Error(), false)
		return MessageReply{
			Response:    "Désolée, j'ai rencontré un problème technique. Pouvez-vous reformuler votre question ? 🙏",
			Suggestions: defaultSuggestions(French),
		}, nil
	}

	if req.AutoRecord && a.recorder != nil {
		out := a.autoRecord(ctx, shop, req, lang)
		switch {
		case out.Recorded != nil:
			reply.TransactionRecorded = out.Recorded
			reply.Response = lang.pick("C'est noté ! ", "Got it! ") + out.Recorded.Message + " " + recordEmoji(out.Recorded.Type)
		case out.Feedback != "":
			if reply.Response != "" {
				reply.Response += "\n\n💡 " + out.Feedback
			} else {
				reply.Response = out.Feedback
			}
		}
	}

	if reply.ProactiveAdvice == nil && snap.ExpensesWeek > snap.SalesWeek {
		advice := lang.pick(
			fmt.Sprintf("⚠️ Attention: tes dépenses cette semaine (%s) dépassent tes ventes (%s). Essaie de réduire les dépenses non essentielles.",
				core.FormatFCFA(snap.ExpensesWeek), core.FormatFCFA(snap.SalesWeek)),
			fmt.Sprintf("⚠️ Warning: your expenses this week (%s) exceed your sales (%s). Try to reduce non-essential expenses.",
				core.FormatFCFA(snap.ExpensesWeek), core.FormatFCFA(snap.SalesWeek)))
		reply.ProactiveAdvice = &advice
	}

	logReply(reply.Response, true)
	return reply, nil
}

func (a *Assistant) autoRecord(ctx context.Context, shop core.Shop, req MessageRequest, lang Language) Outcome {
	if !a.recorder.HasCapacity(shop.ID) {
		return Outcome{Feedback: tooManyFeedback(lang)}
	}
	products, err := a.store.ListProducts(ctx, shop.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list products for intent detection", "shop_id", shop.ID, "error", err)
		return Outcome{}
	}
	intent, err := a.detector.Detect(ctx, req.Message, products, lang)
	if err != nil {
		return Outcome{}
	}
	return a.recorder.Record(ctx, shop, intent, lang, req.IP)
}

func recordEmoji(t IntentType) string {
	switch t {
	case IntentExpense:
		return "📝"
	case IntentDebt:
		return "📋"
	case IntentStock:
		return "📦"
	}
	return "💪"
}

// parseChatbotReply reads the JSON reply. Text without an object becomes the response itself.
func parseChatbotReply(raw string, lang Language) (MessageReply, error) {
	text := cleanFences(raw)
	obj := extractObject(text)
	if obj == "" {
		return MessageReply{Response: text, Suggestions: defaultSuggestions(lang)}, nil
	}
	if !gjson.Valid(obj) {
		return MessageReply{}, errors.New("malformed JSON in model reply")
	}

	res := gjson.Parse(obj)
	reply := MessageReply{Response: strings.TrimSpace(res.Get("response").String())}
	res.Get("suggestions").ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			reply.Suggestions = append(reply.Suggestions, s)
		}
		return true
	})
	if reply.Suggestions == nil {
		reply.Suggestions = []string{}
	}
	if adv := res.Get("proactive_advice"); adv.Exists() && adv.Type == gjson.String && strings.TrimSpace(adv.String()) != "" {
		s := strings.TrimSpace(adv.String())
		reply.ProactiveAdvice = &s
	}
	return reply, nil
}

type ChatReply struct {
	Success        bool   `json:"success"`
	Response       string `json:"response,omitempty"`
	Error          string `json:"error,omitempty"`
	QuotaRemaining int    `json:"quota_remaining"`
	QuotaMax       int    `json:"quota_max"`
}

// Chat is the plain conversation with Cécile, kept in chat history.
func (a *Assistant) Chat(ctx context.Context, shop core.Shop, message string) (ChatReply, error) {
	if err := validateMessage(message, maxChatMessage); err != nil {
		return ChatReply{}, err
	}

	quota := chatQuota(shop)
	used, err := a.store.CountChatMessagesSince(ctx, shop.ID, "user", core.MonthStart(a.now()))
	if err != nil {
		return ChatReply{}, err
	}
	if used >= quota {
		return ChatReply{
			Error:    fmt.Sprintf("Quota de messages atteint (%d/mois). Passez Premium pour plus de conversations avec Cécile!", quota),
			QuotaMax: quota,
		}, nil
	}

	history, err := a.store.RecentChatMessages(ctx, shop.ID, 10)
	if err != nil {
		return ChatReply{}, err
	}
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, Turn{Sender: m.Role, Text: m.Content})
	}

	reply := ChatReply{QuotaRemaining: quota - used - 1, QuotaMax: quota}
	response, genErr := a.cecile(ctx, shop, turns, message)

	if _, err := a.store.AddChatMessage(ctx, shop.ID, "user", message); err != nil {
		return ChatReply{}, err
	}
	if genErr != nil {
		reply.Error = genErr.Error()
		if errors.Is(genErr, ErrNotConfigured) {
			reply.Error = "API Gemini non configurée. Veuillez configurer la clé GOOGLE_API_KEY."
		}
		return reply, nil
	}
	if _, err := a.store.AddChatMessage(ctx, shop.ID, "assistant", response); err != nil {
		return ChatReply{}, err
	}
	reply.Success = true
	reply.Response = response
	return reply, nil
}

func (a *Assistant) cecile(ctx context.Context, shop core.Shop, turns []Turn, message string) (string, error) {
	if a.model == nil {
		return "", ErrNotConfigured
	}
	snap, err := a.snapshots.Snapshot(ctx, shop)
	if err != nil {
		snap = services.Snapshot{ShopName: shop.Name, Plan: shop.Plan}
	}
	raw, err := a.model.Generate(ctx, cecileChatPrompt(snap, turns, message))
	if err != nil {
		slog.ErrorContext(ctx, "Cécile model call failed", "shop_id", shop.ID, "error", err)
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// History returns the last limit chat messages, oldest first.
func (a *Assistant) History(ctx context.Context, shopID string, limit int) ([]storage.ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, 100)
	return a.store.RecentChatMessages(ctx, shopID, limit)
}

func (a *Assistant) ClearHistory(ctx context.Context, shopID string) error {
	n, err := a.store.ClearChatMessages(ctx, shopID)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Chat history cleared", "shop_id", shopID, "messages", n)
	return nil
}

type VoiceProduct struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
}

type VoiceResult struct {
	Success        bool          `json:"success"`
	Product        *VoiceProduct `json:"product"`
	Quantity       *int64        `json:"quantity"`
	UnitPrice      *int64        `json:"unit_price"`
	Confidence     float64       `json:"confidence"`
	QuotaRemaining int           `json:"quota_remaining"`
	Error          string        `json:"error,omitempty"`
}

// ParseVoice extracts a sale from a voice transcript. Every attempt counts against the monthly voice quota.
func (a *Assistant) ParseVoice(ctx context.Context, shop core.Shop, transcript, ip string) (VoiceResult, error) {
	transcript = strings.TrimSpace(transcript)
	if n := utf8.RuneCountInString(transcript); n < 1 || n > maxTranscript {
		return VoiceResult{}, core.Invalid("transcript", "la transcription doit contenir entre 1 et 500 caractères")
	}

	quota := shop.Features.VoiceInputQuota
	if quota <= 0 {
		quota = defaultVoiceQuota
	}
	used, err := a.store.CountVoiceLogsSince(ctx, shop.ID, core.MonthStart(a.now()))
	if err != nil {
		return VoiceResult{}, err
	}
	if used >= quota {
		return VoiceResult{}, core.QuotaExhausted("Quota vocal épuisé ce mois-ci")
	}

	products, err := a.store.ListProducts(ctx, shop.ID)
	if err != nil {
		return VoiceResult{}, err
	}

	result, parsed := a.parseVoice(ctx, transcript, products)
	result.QuotaRemaining = quota - used - 1

	if err := a.store.AddVoiceLog(ctx, storage.VoiceLog{
		ShopID:     shop.ID,
		Transcript: transcript,
		ParsedData: parsed,
		Success:    result.Success,
		Error:      result.Error,
		IP:         ip,
	}); err != nil {
		return VoiceResult{}, err
	}
	return result, nil
}

// parseVoice returns the result and the JSON stored in the voice log.
func (a *Assistant) parseVoice(ctx context.Context, transcript string, products []core.Product) (VoiceResult, string) {
	fail := func(msg string) (VoiceResult, string) {
		b, _ := json.Marshal(map[string]any{"success": false, "error": msg})
		return VoiceResult{Error: msg}, string(b)
	}
	if a.model == nil {
		return fail("API Gemini non configurée")
	}

	raw, err := a.model.Generate(ctx, fmt.Sprintf(voicePrompt, transcript, productList(products, 20)))
	if err != nil {
		slog.ErrorContext(ctx, "Voice model call failed", "error", err)
		return fail(err.Error())
	}
	text := cleanFences(raw)
	if !gjson.Valid(text) || !gjson.Parse(text).IsObject() {
		return fail("Réponse IA invalide")
	}

	res := gjson.Parse(text)
	out := VoiceResult{
		Success:    res.Get("success").Bool(),
		Confidence: firstOf(res, "confiance", "confidence").Float(),
	}
	if q := firstOf(res, "quantite", "quantity"); q.Type == gjson.Number {
		v := q.Int()
		out.Quantity = &v
	}
	if p := firstOf(res, "prix_unitaire", "unit_price"); p.Type == gjson.Number {
		v := p.Int()
		out.UnitPrice = &v
	}
	if name := strings.TrimSpace(firstOf(res, "produit_nom", "product_name").String()); out.Success && name != "" {
		for _, p := range products {
			if strings.EqualFold(p.Name, name) {
				out.Product = &VoiceProduct{ID: p.ID, Name: p.Name, UnitPrice: p.UnitPrice}
				break
			}
		}
	}
	return out, text
}

func firstOf(res gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
