package handler

import (
	"bufio"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/mouton0815/aggregate-event-duality/internal/broker"
)

// eventRow is one outbox row as emitted on the wire, independent of
// which event table it came from.
type eventRow struct {
	revision uint64
	patch    []byte
}

type fetchFunc func(from uint64, limit int) ([]eventRow, error)

// PersonEvents handles GET /person-events: an SSE stream of person merge
// patches starting at the revision given in the X-Revision header.
func PersonEvents(c *fiber.Ctx) error {
	return streamEvents(c, func(from uint64, limit int) ([]eventRow, error) {
		events, err := agg.PersonEventsSince(from, limit)
		if err != nil {
			return nil, err
		}
		rows := make([]eventRow, len(events))
		for i, ev := range events {
			rows[i] = eventRow{revision: ev.Revision, patch: ev.Patch}
		}
		return rows, nil
	})
}

// LocationEvents handles GET /location-events. The revision numbering is
// shared with person events, so this stream is sparse.
func LocationEvents(c *fiber.Ctx) error {
	return streamEvents(c, func(from uint64, limit int) ([]eventRow, error) {
		events, err := agg.LocationEventsSince(from, limit)
		if err != nil {
			return nil, err
		}
		rows := make([]eventRow, len(events))
		for i, ev := range events {
			rows[i] = eventRow{revision: ev.Revision, patch: ev.Patch}
		}
		return rows, nil
	})
}

// streamEvents registers a broker subscription and writes SSE frames
// until the client goes away. Events are drained from the store on every
// wake, so reconnects and coalesced wakes lose nothing. A cursor behind
// the reaped horizon silently jumps to the first surviving revision.
func streamEvents(c *fiber.Ctx, fetch fetchFunc) error {
	from := uint64(1)
	if h := c.Get(headerRevision); h != "" {
		v, err := strconv.ParseUint(h, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": false, "error": "invalid X-Revision header"})
		}
		from = v
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	sub := brk.Subscribe(from)
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer brk.Unsubscribe(sub)
		tail(w, sub, fetch)
	}))
	return nil
}

func tail(w *bufio.Writer, sub *broker.Subscription, fetch fetchFunc) {
	timer := time.NewTimer(keepAlive)
	defer timer.Stop()
	for {
		if ok := drain(w, sub, fetch); !ok {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(keepAlive)
		select {
		case <-sub.Wake():
		case <-timer.C:
			if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

// drain emits all stored events at or past the cursor in revision order.
// Returns false when the subscriber loop should terminate.
func drain(w *bufio.Writer, sub *broker.Subscription, fetch fetchFunc) bool {
	for {
		rows, err := fetch(sub.Next(), batchLimit)
		if err != nil {
			// SSE streams carry no mid-stream error body; just close.
			logrus.WithError(err).Error("Event drain failed, closing stream")
			return false
		}
		for _, row := range rows {
			if _, err := fmt.Fprintf(w, "data: %s\n\n", row.patch); err != nil {
				return false
			}
			sub.Advance(row.revision + 1)
		}
		if err := w.Flush(); err != nil {
			return false
		}
		if len(rows) < batchLimit {
			return true
		}
	}
}
