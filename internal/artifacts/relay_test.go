package artifacts_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/internal/artifacts"
	"github.com/learnx/live-backend/internal/models"
)

var deck = artifacts.ShareInput{
	FileURL:  "https://cdn.test/deck.pptx",
	FileName: "deck.pptx",
	Slides:   []string{"s1.png", "s2.png", "s3.png"},
}

func TestRelay_ShareRequiresPresenter(t *testing.T) {
	// Setup
	r := artifacts.NewRelay()

	// Execute
	_, err := r.Share(models.ArtifactPPT, artifacts.Owner{ID: uuid.New(), Name: "Student"}, false, deck)

	// Assert
	assert.ErrorIs(t, err, artifacts.ErrNotPresenter)
	assert.Empty(t, r.All())
}

func TestRelay_OnlyOwnerChangesSlides(t *testing.T) {
	// Setup
	r := artifacts.NewRelay()
	teacher := artifacts.Owner{ID: uuid.New(), Name: "Teacher"}
	shared, err := r.Share(models.ArtifactPPT, teacher, true, deck)
	require.NoError(t, err)

	// Execute
	_, strangerErr := r.Change(models.ArtifactPPT, uuid.New(), 2)
	changed, err := r.Change(models.ArtifactPPT, teacher.ID, 2)

	// Assert
	assert.ErrorIs(t, strangerErr, artifacts.ErrNotOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.Page)
	assert.Equal(t, 3, shared.TotalPages)
	assert.Equal(t, 2, changed.Page)
	assert.Equal(t, teacher.ID, changed.OwnerID)
	assert.Greater(t, changed.Version, shared.Version)
	current := r.All()
	require.Len(t, current, 1)
	assert.Equal(t, 2, current[0].Page, "rejected change left the owner's state intact")
}

func TestRelay_PageBounds(t *testing.T) {
	r := artifacts.NewRelay()
	owner := artifacts.Owner{ID: uuid.New()}
	_, err := r.Share(models.ArtifactPDF, owner, true, artifacts.ShareInput{FileURL: "https://cdn.test/a.pdf", TotalPages: 4})
	require.NoError(t, err)

	tests := []struct {
		page    int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{4, false},
		{5, true},
	}
	for _, tt := range tests {
		_, err := r.Change(models.ArtifactPDF, owner.ID, tt.page)
		if tt.wantErr {
			assert.ErrorIs(t, err, artifacts.ErrPageOutOfRange, "page %d", tt.page)
		} else {
			assert.NoError(t, err, "page %d", tt.page)
		}
	}
}

func TestRelay_CloseResetsState(t *testing.T) {
	// Setup
	r := artifacts.NewRelay()
	owner := artifacts.Owner{ID: uuid.New()}
	_, err := r.Share(models.ArtifactScreen, owner, true, artifacts.ShareInput{})
	require.NoError(t, err)

	// Execute
	_, strangerErr := r.Close(models.ArtifactScreen, uuid.New())
	closed, err := r.Close(models.ArtifactScreen, owner.ID)

	// Assert
	assert.ErrorIs(t, strangerErr, artifacts.ErrNotOwner)
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactScreen, closed.Kind)
	assert.Empty(t, r.All())
	_, err = r.Change(models.ArtifactScreen, owner.ID, 1)
	assert.ErrorIs(t, err, artifacts.ErrNothingShared)
}

func TestRelay_CloseOwnedBy(t *testing.T) {
	// Setup
	r := artifacts.NewRelay()
	a, b := artifacts.Owner{ID: uuid.New()}, artifacts.Owner{ID: uuid.New()}
	_, _ = r.Share(models.ArtifactScreen, a, true, artifacts.ShareInput{})
	_, _ = r.Share(models.ArtifactPPT, a, true, deck)
	_, _ = r.Share(models.ArtifactPDF, b, true, artifacts.ShareInput{FileURL: "u", TotalPages: 2})

	// Execute
	closed := r.CloseOwnedBy(a.ID)

	// Assert
	assert.Len(t, closed, 2)
	remaining := r.All()
	require.Len(t, remaining, 1)
	assert.Equal(t, models.ArtifactPDF, remaining[0].Kind)
}

func TestRelay_StateIsCopied(t *testing.T) {
	r := artifacts.NewRelay()
	st, err := r.Share(models.ArtifactPPT, artifacts.Owner{ID: uuid.New()}, true, deck)
	require.NoError(t, err)

	st.Slides[0] = "tampered"

	current := r.All()
	require.Len(t, current, 1)
	assert.Equal(t, "s1.png", current[0].Slides[0])
}

func TestRelay_InvalidShares(t *testing.T) {
	r := artifacts.NewRelay()
	owner := artifacts.Owner{ID: uuid.New()}

	_, err := r.Share(models.ArtifactPDF, owner, true, artifacts.ShareInput{FileURL: "u"})
	assert.ErrorIs(t, err, artifacts.ErrInvalidArtifact)
	_, err = r.Share(models.ArtifactPPT, owner, true, artifacts.ShareInput{FileURL: "u"})
	assert.ErrorIs(t, err, artifacts.ErrInvalidArtifact)
	_, err = r.Share("whiteboard", owner, true, artifacts.ShareInput{})
	assert.ErrorIs(t, err, artifacts.ErrUnknownKind)
}

func TestParseKind(t *testing.T) {
	k, err := artifacts.ParseKind(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactPDF, k)

	_, err = artifacts.ParseKind("doc")
	assert.ErrorIs(t, err, artifacts.ErrUnknownKind)
}
