package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/voxprint/internal/recognize"
	"github.com/MrWong99/voxprint/pkg/audio"
	"github.com/MrWong99/voxprint/pkg/speaker"
)

type enrollRequest struct {
	// ID is optional; the store assigns one when empty.
	ID    string `json:"id"`
	Label string `json:"label"`

	// Samples are base64-encoded 16 kHz mono PCM16 utterances.
	Samples []string `json:"samples"`
}

type retrainRequest struct {
	Samples []string `json:"samples"`
}

// profileResponse is the API view of a profile. The raw embedding stays
// server-side.
type profileResponse struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Samples   int       `json:"samples"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type speakerListResponse struct {
	Speakers []profileResponse `json:"speakers"`
	Count    int               `json:"count"`
}

func toProfileResponse(p speaker.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID,
		Label:     p.Label,
		Samples:   p.Samples,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (s *Server) handleListSpeakers(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.deps.Store.List(r.Context())
	if err != nil {
		s.log.Error("list speakers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list speakers")
		return
	}

	resp := speakerListResponse{
		Speakers: make([]profileResponse, 0, len(profiles)),
		Count:    len(profiles),
	}
	for _, p := range profiles {
		resp.Speakers = append(resp.Speakers, toProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}
	if len(req.Samples) < s.cfg.MinEnrollSamples {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("at least %d audio samples required, got %d", s.cfg.MinEnrollSamples, len(req.Samples)))
		return
	}

	mats, err := s.featureMatrices(req.Samples)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.deps.Speakers.Enroll(r.Context(), req.ID, req.Label, mats)
	switch {
	case errors.Is(err, speaker.ErrDuplicateID):
		writeError(w, http.StatusConflict, "a speaker with that id already exists")
	case errors.Is(err, recognize.ErrSimilarLabel):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.log.Error("enrollment failed", "label", req.Label, "error", err)
		writeError(w, http.StatusInternalServerError, "enrollment failed")
	default:
		s.recordSpeakerOp(r.Context(), "enroll")
		writeJSON(w, http.StatusCreated, toProfileResponse(p))
	}
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req retrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "at least one audio sample required")
		return
	}

	mats, err := s.featureMatrices(req.Samples)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.deps.Speakers.Retrain(r.Context(), id, mats)
	switch {
	case errors.Is(err, speaker.ErrNotFound):
		writeError(w, http.StatusNotFound, "speaker not found")
	case err != nil:
		s.log.Error("retrain failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "retrain failed")
	default:
		s.recordSpeakerOp(r.Context(), "retrain")
		writeJSON(w, http.StatusOK, toProfileResponse(p))
	}
}

func (s *Server) handleRemoveSpeaker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.deps.Speakers.Remove(r.Context(), id)
	switch {
	case errors.Is(err, speaker.ErrNotFound):
		writeError(w, http.StatusNotFound, "speaker not found")
	case err != nil:
		s.log.Error("remove speaker failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "remove failed")
	default:
		s.recordSpeakerOp(r.Context(), "remove")
		w.WriteHeader(http.StatusNoContent)
	}
}

// recordSpeakerOp reports a successful profile mutation to the
// instruments, when attached.
func (s *Server) recordSpeakerOp(ctx context.Context, action string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSpeakerOp(ctx, action)
	}
}

// featureMatrices decodes each base64 PCM sample and extracts its
// feature matrix.
func (s *Server) featureMatrices(encoded []string) ([][][]float32, error) {
	mats := make([][][]float32, 0, len(encoded))
	for i, enc := range encoded {
		pcm, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("sample %d: invalid base64", i)
		}
		if len(pcm) == 0 {
			return nil, fmt.Errorf("sample %d: empty audio", i)
		}
		m, err := s.deps.Extractor.Comprehensive(audio.Float32(pcm))
		if err != nil {
			return nil, fmt.Errorf("sample %d: feature extraction: %w", i, err)
		}
		mats = append(mats, m)
	}
	return mats, nil
}
