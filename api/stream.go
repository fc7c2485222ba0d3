package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"retro-api/subscription"
)

// streamBoard serves the live snapshot stream for one board over SSE.
// Each connection is one listener on the broker; the subscription is
// released on every exit path. On every wake-up the handler re-fetches
// the full snapshot from the store; the snapshot is authoritative and
// replaces whatever the client held, in any arrival order. When a fetch
// fails mid-stream the client keeps its last-known snapshot and the
// stream waits for the next change.
func streamBoard(store Storage, broker *subscription.Broker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		viewer, err := usernameFromRequest(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		boardID := c.Param("boardId")

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := broker.Subscribe(boardID)
		defer broker.Unsubscribe(boardID, ch)

		sent := false
		for {
			snapshot, err := store.FetchSnapshot(ctx, boardID)
			if err != nil {
				if !sent {
					// Nothing delivered yet, fail the request outright.
					return httpError(c, err)
				}
				logger.WithError(err).WithField("board", boardID).Error("snapshot refresh failed; keeping last-known state")
			} else {
				snapshot.Notes = visibleNotes(snapshot, viewer)
				data, err := sonic.Marshal(snapshot)
				if err != nil {
					logger.WithError(err).Error("marshal snapshot")
					return err
				}
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
				sent = true
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}
