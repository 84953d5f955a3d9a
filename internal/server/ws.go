package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tripplanner/internal/planning"
	"tripplanner/internal/trip"
)

const (
	planWSWriteWait = 10 * time.Second
	planWSPongWait  = 60 * time.Second
	planWSPingEvery = (planWSPongWait * 9) / 10
)

var planWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type planWSOutbound struct {
	Type              string             `json:"type"`
	TraceID           string             `json:"trace_id,omitempty"`
	Step              planning.StepName  `json:"step,omitempty"`
	Kind              planning.EventKind `json:"kind,omitempty"`
	Status            planning.Status    `json:"status,omitempty"`
	ElapsedMs         int64              `json:"elapsed_ms,omitempty"`
	Data              *trip.Itinerary    `json:"data,omitempty"`
	ExecutionTimeMs   int64              `json:"execution_time_ms,omitempty"`
	FallbackActivated bool               `json:"fallback_activated"`
	Code              string             `json:"code,omitempty"`
	Message           string             `json:"message,omitempty"`
}

// handlePlanWS runs one plan per connection. The client sends the request as
// its first message; step events stream back followed by a result or error.
func (s *Handlers) handlePlanWS(w http.ResponseWriter, r *http.Request) {
	conn, err := planWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(planWSPongWait)); err != nil {
		log.Printf("plan ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(planWSPongWait))
	})

	var req trip.Request
	readErr := conn.ReadJSON(&req)

	writeCh := make(chan planWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(planWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out, ok := <-writeCh:
				if !ok {
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(planWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(planWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	finish := func() {
		close(writeCh)
		<-writerDone
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(planWSWriteWait))
	}

	if readErr != nil {
		pushPlanWS(ctx, writeCh, planWSOutbound{Type: "error", Code: "invalid_argument", Message: "invalid json: " + readErr.Error()})
		finish()
		return
	}

	// Keep reading so pongs are processed and a client close cancels the run.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	obs := planning.ObserverFunc(func(ev planning.StepEvent) {
		pushPlanWS(ctx, writeCh, planWSOutbound{
			Type:      "step",
			TraceID:   ev.TraceID,
			Step:      ev.Step,
			Kind:      ev.Kind,
			Status:    ev.Status,
			ElapsedMs: ev.ElapsedMs,
			Message:   ev.Error,
		})
	})
	res, err := s.planner.PlanWithObserver(withRequestInfo(ctx, r), req, userID(r), obs)
	if err != nil {
		code := "internal"
		var verr *trip.ValidationError
		if errors.As(err, &verr) {
			code = "invalid_argument"
		}
		_, detail := classify(err)
		pushPlanWS(ctx, writeCh, planWSOutbound{Type: "error", TraceID: res.TraceID, Code: code, Message: detail})
		finish()
		return
	}
	pushPlanWS(ctx, writeCh, planWSOutbound{
		Type:              "result",
		TraceID:           res.TraceID,
		Data:              res.Itinerary,
		ExecutionTimeMs:   res.ExecutionTimeMs,
		FallbackActivated: res.FallbackActivated,
		Message:           "旅行计划生成成功",
	})
	finish()
}

func pushPlanWS(ctx context.Context, writeCh chan<- planWSOutbound, out planWSOutbound) {
	select {
	case writeCh <- out:
	case <-ctx.Done():
	}
}
