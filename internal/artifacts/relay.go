package artifacts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/learnx/live-backend/internal/models"
)

var (
	// ErrNotPresenter is returned when someone other than the presenter starts a share.
	ErrNotPresenter = errors.New("only the presenter can share")
	// ErrNotOwner is returned when someone other than the owner mutates a shared artifact.
	ErrNotOwner = errors.New("only the owner can change this artifact")
	// ErrNothingShared is returned for changes to an artifact kind that is not being shared.
	ErrNothingShared = errors.New("nothing shared")
	// ErrPageOutOfRange is returned for page or slide indexes outside 1..total.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrUnknownKind is returned for an unrecognised artifact kind.
	ErrUnknownKind = errors.New("unknown artifact kind")
	// ErrInvalidArtifact is returned when a share is missing its document.
	ErrInvalidArtifact = errors.New("invalid artifact")
)

// ParseKind converts a wire name to an ArtifactKind.
func ParseKind(s string) (models.ArtifactKind, error) {
	switch k := models.ArtifactKind(strings.ToLower(strings.TrimSpace(s))); k {
	case models.ArtifactScreen, models.ArtifactPDF, models.ArtifactPPT:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Owner identifies who performs an artifact action.
type Owner struct {
	ID   uuid.UUID
	Name string
}

// ShareInput is the document part of a share action.
type ShareInput struct {
	FileURL    string
	FileName   string
	TotalPages int
	Slides     []string
}

// Relay holds the shared artifact state of one session, at most one artifact per kind.
// It is not safe for concurrent use; the session actor owns it.
type Relay struct {
	states   map[models.ArtifactKind]*models.ArtifactState
	versions map[models.ArtifactKind]int
	now      func() time.Time
}

// NewRelay returns a relay with nothing shared.
func NewRelay() *Relay {
	return &Relay{
		states:   make(map[models.ArtifactKind]*models.ArtifactState),
		versions: make(map[models.ArtifactKind]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Relay) nextVersion(kind models.ArtifactKind) int {
	r.versions[kind]++
	return r.versions[kind]
}

// Share starts (or replaces) the artifact of the given kind, owned by owner.
// Documents open on page 1.
func (r *Relay) Share(kind models.ArtifactKind, owner Owner, isPresenter bool, in ShareInput) (models.ArtifactState, error) {
	if !isPresenter {
		return models.ArtifactState{}, ErrNotPresenter
	}
	st := models.ArtifactState{
		Kind:      kind,
		OwnerID:   owner.ID,
		OwnerName: owner.Name,
	}
	switch kind {
	case models.ArtifactScreen:
	case models.ArtifactPDF:
		if in.FileURL == "" || in.TotalPages < 1 {
			return models.ArtifactState{}, fmt.Errorf("%w: pdf needs fileUrl and totalPages", ErrInvalidArtifact)
		}
		st.FileURL, st.FileName = in.FileURL, in.FileName
		st.Page, st.TotalPages = 1, in.TotalPages
	case models.ArtifactPPT:
		if len(in.Slides) == 0 {
			return models.ArtifactState{}, fmt.Errorf("%w: presentation needs slides", ErrInvalidArtifact)
		}
		st.FileURL, st.FileName = in.FileURL, in.FileName
		st.Slides = append([]string(nil), in.Slides...)
		st.Page, st.TotalPages = 1, len(in.Slides)
	default:
		return models.ArtifactState{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	st.Version = r.nextVersion(kind)
	st.UpdatedAt = r.now()
	r.states[kind] = &st
	return clone(st), nil
}

// Change moves the owner's document to page (1-based).
func (r *Relay) Change(kind models.ArtifactKind, userID uuid.UUID, page int) (models.ArtifactState, error) {
	st, ok := r.states[kind]
	if !ok {
		return models.ArtifactState{}, ErrNothingShared
	}
	if st.OwnerID != userID {
		return models.ArtifactState{}, ErrNotOwner
	}
	if kind == models.ArtifactScreen {
		return models.ArtifactState{}, fmt.Errorf("%w: screen share has no pages", ErrInvalidArtifact)
	}
	if page < 1 || page > st.TotalPages {
		return models.ArtifactState{}, fmt.Errorf("%w: %d not in 1..%d", ErrPageOutOfRange, page, st.TotalPages)
	}
	st.Page = page
	st.Version = r.nextVersion(kind)
	st.UpdatedAt = r.now()
	return clone(*st), nil
}

// Close stops the owner's artifact and returns its final state.
func (r *Relay) Close(kind models.ArtifactKind, userID uuid.UUID) (models.ArtifactState, error) {
	st, ok := r.states[kind]
	if !ok {
		return models.ArtifactState{}, ErrNothingShared
	}
	if st.OwnerID != userID {
		return models.ArtifactState{}, ErrNotOwner
	}
	delete(r.states, kind)
	r.nextVersion(kind)
	return clone(*st), nil
}

// CloseOwnedBy closes every artifact owned by userID and returns what was closed.
func (r *Relay) CloseOwnedBy(userID uuid.UUID) []models.ArtifactState {
	var closed []models.ArtifactState
	for _, kind := range kinds {
		if st, ok := r.states[kind]; ok && st.OwnerID == userID {
			closed = append(closed, clone(*st))
			delete(r.states, kind)
			r.nextVersion(kind)
		}
	}
	return closed
}

// All returns every shared artifact in a stable order, for late joiners.
func (r *Relay) All() []models.ArtifactState {
	out := make([]models.ArtifactState, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, clone(*st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

var kinds = []models.ArtifactKind{models.ArtifactScreen, models.ArtifactPDF, models.ArtifactPPT}

func clone(st models.ArtifactState) models.ArtifactState {
	if st.Slides != nil {
		st.Slides = append([]string(nil), st.Slides...)
	}
	return st
}
