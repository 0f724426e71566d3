// README: Websocket endpoint streaming live view snapshots.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rideshare/internal/http/middleware"
	"rideshare/internal/logging"
	"rideshare/internal/modules/feed"
	"rideshare/internal/modules/ride"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type FeedHandler struct {
	feed     *feed.Service
	loc      *time.Location
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewFeedHandler(svc *feed.Service, loc *time.Location, logger *logrus.Logger) *FeedHandler {
	return &FeedHandler{
		feed: svc,
		loc:  loc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Callers authenticate with a bearer token, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logging.Module(logger, "feed_ws"),
	}
}

type snapshotMessage struct {
	View    ride.View      `json:"view"`
	Rides   []rideResponse `json:"rides"`
	Balance int64          `json:"balance"`
	At      time.Time      `json:"at"`
}

// Stream upgrades to a websocket and pushes a snapshot of ?view= whenever it changes.
// Messages from the client are ignored; closing the socket ends the subscription.
func (h *FeedHandler) Stream(c *gin.Context) {
	v, err := ride.ParseView(c.Query("view"))
	if err != nil {
		writeRideError(c, err)
		return
	}
	uid := middleware.CallerUID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	snaps, err := h.feed.Watch(ctx, uid, v)
	if err != nil {
		h.log.WithError(err).WithField("viewer", uid).Warn("watch failed")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed unavailable"),
			time.Now().Add(writeWait))
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snapshotMessage{
				View:    snap.View,
				Rides:   toResponses(snap.Rides, h.loc),
				Balance: snap.Balance,
				At:      snap.At,
			}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
