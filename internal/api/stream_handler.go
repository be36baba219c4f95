package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/core"
)

// LessonStreamHandler reports the persisted stream state of one lesson so a
// client can render the room before the signaling channel is up
func LessonStreamHandler(streams core.LessonStreamsDBStorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessonID := core.LessonID(chi.URLParam(r, "lessonID"))
		if lessonID == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		session, err := streams.Find(lessonID)
		if err != nil {
			log.Error().Err(err).Str("service", "web").Str("lessonID", string(lessonID)).Msg("find lesson stream")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(session); err != nil {
			log.Error().Err(err).Str("service", "web").Msg("encode lesson stream")
		}
	}
}
