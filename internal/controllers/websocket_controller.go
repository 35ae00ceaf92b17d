package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/regcheck/backend/internal/logger"
	"github.com/regcheck/backend/internal/middleware"
	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/notifier"
)

const (
	defaultAuthTimeout = 5 * time.Second
	defaultHeartbeat   = 30 * time.Second
	writeWait          = 10 * time.Second
	maxMessageSize     = 4096
)

// DocumentLookup loads a document for ownership checks and status snapshots
type DocumentLookup interface {
	GetDocument(ctx context.Context, id uint) (*models.Document, error)
}

type WebSocketController struct {
	hub         *notifier.Hub
	documents   DocumentLookup
	secret      string
	upgrader    websocket.Upgrader
	authTimeout time.Duration
	heartbeat   time.Duration
}

func NewWebSocketController(hub *notifier.Hub, documents DocumentLookup, secret, allowedOrigin string, local bool) *WebSocketController {
	return &WebSocketController{
		hub:       hub,
		documents: documents,
		secret:    secret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return local || origin == "" || origin == allowedOrigin
			},
		},
		authTimeout: defaultAuthTimeout,
		heartbeat:   defaultHeartbeat,
	}
}

type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// DocumentStatus streams status events of one document. The client must send
// an authenticate message before anything else is delivered.
func (wc *WebSocketController) DocumentStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err, "websocket").Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	log := logger.WithContext(map[string]interface{}{"component": "websocket", "document_id": id})

	if err := wc.authenticate(c.Request.Context(), conn, id); err != nil {
		log.WithError(err).Info("WebSocket authentication rejected")
		closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	sub, err := wc.hub.Subscribe(id)
	if err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer wc.hub.Unsubscribe(sub)

	// Read after subscribing so a status published in between is either in
	// the snapshot or queued on sub.C.
	doc, err := wc.documents.GetDocument(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Warn("WebSocket snapshot lookup failed")
		closeWith(conn, websocket.CloseInternalServerErr, "document unavailable")
		return
	}

	progress, err := wc.sendSnapshot(conn, doc)
	if err != nil {
		return
	}
	if doc.IsTerminal() {
		closeWith(conn, websocket.CloseNormalClosure, "processing finished")
		return
	}

	echo := make(chan struct{}, 1)
	done := make(chan struct{})
	go wc.writeLoop(conn, sub, &progressGate{floor: progress}, echo, done)

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("WebSocket read failed")
			}
			break
		}
		if msg.Type == notifier.TypeHeartbeat {
			select {
			case echo <- struct{}{}:
			default:
			}
		}
	}
	close(done)
}

var (
	errAuthRequired = errors.New("authentication required")
	errAuthInvalid  = errors.New("invalid token")
	errAccessDenied = errors.New("access denied")
)

func (wc *WebSocketController) authenticate(ctx context.Context, conn *websocket.Conn, documentID uint) error {
	conn.SetReadDeadline(time.Now().Add(wc.authTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var msg clientMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != notifier.TypeAuthenticate || msg.Token == "" {
		return errAuthRequired
	}

	claims, err := middleware.ParseToken(wc.secret, msg.Token)
	if err != nil {
		return errAuthInvalid
	}

	doc, err := wc.documents.GetDocument(ctx, documentID)
	if err != nil || doc.OwnerID != claims.UserID {
		return errAccessDenied
	}
	return nil
}

// sendSnapshot confirms the subscription and sends the latest known status.
// It returns the progress it reported.
func (wc *WebSocketController) sendSnapshot(conn *websocket.Conn, doc *models.Document) (int, error) {
	if err := writeEvent(conn, notifier.ConnectionEstablishedEvent(doc.ID)); err != nil {
		return 0, err
	}

	progress := doc.Progress
	if p, ok := wc.hub.LastProgress(doc.ID); ok && p > progress && !doc.IsTerminal() {
		progress = p
	}
	if err := writeEvent(conn, notifier.StatusEvent(doc.ID, string(doc.Status), doc.Stage, progress, "")); err != nil {
		return 0, err
	}
	if doc.Status == models.DocumentStatusError && doc.ErrorMessage != "" {
		return progress, writeEvent(conn, notifier.ErrorEvent(doc.ID, doc.ErrorMessage))
	}
	return progress, nil
}

// progressGate drops queued status events that would take the current run
// below progress already sent. A terminal status ends the run.
type progressGate struct {
	floor int
}

func (g *progressGate) admit(ev notifier.Event) bool {
	if ev.Type != notifier.TypeStatus || ev.Progress == nil {
		return true
	}
	switch models.DocumentStatus(ev.Status) {
	case models.DocumentStatusCompleted, models.DocumentStatusError:
		g.floor = 0
		return true
	}
	if *ev.Progress < g.floor {
		return false
	}
	g.floor = *ev.Progress
	return true
}

// writeLoop is the only writer on conn once the snapshot has been sent
func (wc *WebSocketController) writeLoop(conn *websocket.Conn, sub *notifier.Subscription, gate *progressGate, echo <-chan struct{}, done <-chan struct{}) {
	ticker := time.NewTicker(wc.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				closeWith(conn, websocket.CloseGoingAway, "subscription closed")
				return
			}
			if !gate.admit(ev) {
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := writeEvent(conn, notifier.HeartbeatEvent()); err != nil {
				conn.Close()
				return
			}
		case <-echo:
			if err := writeEvent(conn, notifier.HeartbeatEvent()); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev notifier.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
