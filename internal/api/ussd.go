package api

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/i18n"
	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/ussd"
)

// handleUSSD serves the gateway webhook. The gateway posts form fields and
// expects a plain-text body starting with CON or END; requests it cannot
// serve get a 200 END line so the caller sees a message, not a dropped
// session.
func (s *Server) handleUSSD(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		zap.L().Warn("api: ussd form rejected", zap.Error(err))
		writeUSSDFailure(w)
		return
	}
	req := ussd.Request{
		SessionID:   r.PostForm.Get("sessionId"),
		ServiceCode: r.PostForm.Get("serviceCode"),
		PhoneNumber: r.PostForm.Get("phoneNumber"),
		Text:        r.PostForm.Get("text"),
	}
	if req.PhoneNumber == "" {
		zap.L().Warn("api: ussd request without phoneNumber", zap.String("session_id", req.SessionID))
		writeUSSDFailure(w)
		return
	}

	writeUSSD(w, s.deps.USSD.Handle(r.Context(), req))
}

func writeUSSD(w http.ResponseWriter, line string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, line)
}

func writeUSSDFailure(w http.ResponseWriter) {
	writeUSSD(w, "END "+i18n.T(i18n.GenericError, model.DefaultLanguage))
}
