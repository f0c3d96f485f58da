package http

import (
	"net/http"
	"strconv"
	"strings"

	"djassa/internal/assistant"
	"djassa/internal/core"
)

type voiceRequest struct {
	Transcript string `json:"transcript"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type conversationTurn struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

type messageRequest struct {
	Message             string             `json:"message"`
	ConversationHistory []conversationTurn `json:"conversation_history"`
	Language            string             `json:"language"`
	AutoRecord          *bool              `json:"auto_record"`
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req voiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.assistant.ParseVoice(r.Context(), shop, sanitizeInput(req.Transcript), s.clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reply, err := s.assistant.Chat(r.Context(), shop, sanitizeInput(req.Message))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			BadRequestError("limit doit être un entier positif").Write(w)
			return
		}
		limit = n
	}
	messages, err := s.assistant.History(r.Context(), shop.ID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(messages, newChatMessageView))
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	if err := s.assistant.ClearHistory(r.Context(), shop.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Historique effacé"})
}

// handleMessage serves the chatbot. Auto-recording is on unless the client opts out.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	lang := assistant.French
	if strings.EqualFold(strings.TrimSpace(req.Language), string(assistant.English)) {
		lang = assistant.English
	}
	autoRecord := req.AutoRecord == nil || *req.AutoRecord

	history := make([]assistant.Turn, 0, len(req.ConversationHistory))
	for _, t := range req.ConversationHistory {
		history = append(history, assistant.Turn{Sender: sanitizeInput(t.Sender), Text: sanitizeInput(t.Text)})
	}

	reply, err := s.assistant.Message(r.Context(), shop, assistant.MessageRequest{
		Message:    sanitizeInput(req.Message),
		Language:   lang,
		History:    history,
		AutoRecord: autoRecord,
		IP:         s.clientIP(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
