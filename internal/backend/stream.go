package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

var errStreamEvent = errors.New("message stream returned error")

// maxStreamLineSize bounds a single SSE line. Token fragments are small; a
// line this large means the stream is corrupt.
const maxStreamLineSize = 1 << 20 // 1MB

type tokenPayload struct {
	Token string `json:"token"`
}

type completePayload struct {
	PointsEarned int    `json:"pointsEarned"`
	MessageID    string `json:"messageId"`
}

// OpenMessageStream sends a message into a conversation and yields the
// server's events in delivery order. The sequence ends after the terminal
// complete event, or with an error on transport failure, a server error
// event, context cancellation, or an idle stream exceeding the configured
// watchdog window.
func (c *Client) OpenMessageStream(ctx context.Context, userID, conversationID, message string) iter.Seq2[*StreamEvent, error] {
	return func(yield func(*StreamEvent, error) bool) {
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		q := url.Values{
			"userId":         {userID},
			"conversationId": {conversationID},
			"message":        {message},
		}
		u := c.baseURL + "/chat/stream/conversation?" + q.Encode()

		req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u, nil)
		if err != nil {
			yield(nil, fmt.Errorf("build stream request: %w", err))
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := c.stream.Do(req)
		if err != nil {
			yield(nil, fmt.Errorf("open message stream: %w", err))
			return
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.logger.Warn("failed to close stream body", "error", closeErr)
			}
		}()

		if resp.StatusCode != http.StatusOK {
			yield(nil, statusError(resp))
			return
		}

		// Idle watchdog: if no event arrives within the window, tear the
		// connection down and report a stall instead of hanging forever on a
		// stream that never errors and never completes.
		var stalled atomic.Bool
		watchdog := time.AfterFunc(c.idleWindow, func() {
			stalled.Store(true)
			cancel()
		})
		defer watchdog.Stop()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 4096), maxStreamLineSize)

		var event string
		var data strings.Builder
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				done, ok := c.dispatchStreamEvent(event, data.String(), watchdog, yield)
				if done || !ok {
					return
				}
				event = ""
				data.Reset()
			case strings.HasPrefix(line, ":"):
				// Comment line, keep-alive only.
				watchdog.Reset(c.idleWindow)
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			default:
				// id:, retry:, and unknown fields are not needed client-side.
			}
		}

		if stalled.Load() {
			yield(nil, ErrStreamStalled)
			return
		}
		if ctx.Err() != nil {
			yield(nil, ctx.Err())
			return
		}
		if err := sc.Err(); err != nil {
			yield(nil, fmt.Errorf("read message stream: %w", err))
			return
		}
		// The server closed the stream without a terminal event.
		yield(nil, fmt.Errorf("read message stream: %w", io.ErrUnexpectedEOF))
	}
}

// dispatchStreamEvent handles one complete SSE frame. It returns done=true
// when a terminal event ended the stream, and ok=false when the consumer
// stopped iterating.
func (c *Client) dispatchStreamEvent(event, data string, watchdog *time.Timer, yield func(*StreamEvent, error) bool) (done, ok bool) {
	watchdog.Reset(c.idleWindow)

	switch event {
	case "token":
		var payload tokenPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			yield(nil, fmt.Errorf("decode token event: %w", err))
			return true, false
		}
		return false, yield(&StreamEvent{Type: StreamToken, Token: payload.Token}, nil)

	case "complete":
		var payload completePayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			yield(nil, fmt.Errorf("decode complete event: %w", err))
			return true, false
		}
		yield(&StreamEvent{
			Type:         StreamComplete,
			PointsEarned: payload.PointsEarned,
			MessageID:    payload.MessageID,
		}, nil)
		return true, true

	case "error":
		if data == "" {
			yield(nil, errStreamEvent)
		} else {
			yield(nil, fmt.Errorf("%w: %s", errStreamEvent, data))
		}
		return true, false

	default:
		// connected, ping, and future event types reset the watchdog only.
		return false, true
	}
}
