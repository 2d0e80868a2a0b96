package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/stream"
)

// events streams lifecycle events as server-sent events. Clients pick
// topics with ?topics=jobs,job:<id>, defaulting to the firehose. Slow
// clients lose events rather than stall the queue.
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	topics := []string{stream.TopicFirehose}
	if raw := r.URL.Query().Get("topics"); raw != "" {
		topics = strings.Split(raw, ",")
		for _, topic := range topics {
			if err := stream.ValidateTopic(topic); err != nil {
				a.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	subID := middleware.GetReqID(r.Context())
	if subID == "" {
		subID = id.NewSubscriberID().String()
	}
	sub := a.broker.Subscribe(subID, topics...)
	defer a.broker.RemoveSubscriber(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				a.logger.Error("encode event", slog.Any("error", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
			flusher.Flush()
		}
	}
}
