package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
)

type memLocations struct {
	rows       map[uint64]model.Location
	inUse      map[uint64]bool
	localities []model.Locality
}

func newMemLocations() *memLocations {
	return &memLocations{rows: map[uint64]model.Location{}, inUse: map[uint64]bool{}}
}

func (m *memLocations) List(context.Context) ([]model.Location, error) {
	out := []model.Location{}
	for _, l := range m.rows {
		out = append(out, l)
	}
	return out, nil
}

func (m *memLocations) GetByID(_ context.Context, id uint64) (model.Location, error) {
	l, ok := m.rows[id]
	if !ok {
		return model.Location{}, repository.ErrNotFound
	}
	return l, nil
}

func (m *memLocations) SlugTaken(_ context.Context, slug string) (bool, error) {
	for _, l := range m.rows {
		if l.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLocations) Create(_ context.Context, l *model.Location) error {
	l.ID = uint64(len(m.rows) + 1)
	m.rows[l.ID] = *l
	return nil
}

func (m *memLocations) Delete(_ context.Context, id uint64) error {
	if _, ok := m.rows[id]; !ok {
		return repository.ErrNotFound
	}
	if m.inUse[id] {
		return repository.ErrConflict
	}
	delete(m.rows, id)
	return nil
}

func (m *memLocations) ListLocalities(context.Context) ([]model.Locality, error) {
	return m.localities, nil
}

func TestCreateLocation_UniqueSlug(t *testing.T) {
	store := newMemLocations()
	h := NewLocationHandler(store)
	e := newEcho()
	e.POST("/locations", h.Create)
	e.GET("/locations/:id", h.Get)

	const venue = `{"designation":"Théâtre Royal","address":"Rue 1","postalCode":"1000","locality":"Bruxelles"}`
	rec := serve(e, jsonReq(http.MethodPost, "/locations", venue))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "theatre-royal", body(t, rec)["slug"])

	rec = serve(e, jsonReq(http.MethodPost, "/locations", venue))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "theatre-royal-2", body(t, rec)["slug"])

	rec = serve(e, jsonReq(http.MethodPost, "/locations", `{"designation":"No address"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/locations/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bruxelles", body(t, rec)["localityName"])
}

func TestDeleteLocation_InUse(t *testing.T) {
	store := newMemLocations()
	store.rows[1] = model.Location{ID: 1, Slug: "a"}
	store.rows[2] = model.Location{ID: 2, Slug: "b"}
	store.inUse[1] = true
	h := NewLocationHandler(store)
	e := newEcho()
	e.DELETE("/locations/:id", h.Delete)

	rec := serve(e, httptest.NewRequest(http.MethodDelete, "/locations/1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/locations/2", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/locations/2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type memArtists struct {
	artists  []model.Artist
	types    []model.ArtistType
	credited map[uint64]bool
}

func (m *memArtists) List(context.Context) ([]model.Artist, error) { return m.artists, nil }

func (m *memArtists) GetByID(_ context.Context, id uint64) (model.Artist, error) {
	for _, a := range m.artists {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Artist{}, repository.ErrNotFound
}

func (m *memArtists) Create(_ context.Context, a *model.Artist) error {
	a.ID = uint64(len(m.artists) + 1)
	m.artists = append(m.artists, *a)
	return nil
}

func (m *memArtists) ListArtistTypes(context.Context) ([]model.ArtistType, error) { return m.types, nil }

func (m *memArtists) CreateArtistType(ctx context.Context, artistID uint64, typeName string) (model.ArtistType, error) {
	a, err := m.GetByID(ctx, artistID)
	if err != nil {
		return model.ArtistType{}, err
	}
	for _, at := range m.types {
		if at.ArtistID == artistID && at.Type == typeName {
			return model.ArtistType{}, repository.ErrConflict
		}
	}
	at := model.ArtistType{ID: uint64(len(m.types) + 1), ArtistID: artistID, ArtistName: a.FullName(), Type: typeName}
	m.types = append(m.types, at)
	return at, nil
}

func (m *memArtists) Delete(_ context.Context, id uint64) error {
	for i, a := range m.artists {
		if a.ID != id {
			continue
		}
		if m.credited[id] {
			return repository.ErrConflict
		}
		m.artists = append(m.artists[:i], m.artists[i+1:]...)
		return nil
	}
	return repository.ErrNotFound
}

func TestArtists(t *testing.T) {
	h := NewArtistHandler(&memArtists{})
	e := newEcho()
	e.POST("/artists", h.Create)
	e.POST("/artist-types", h.CreateType)

	rec := serve(e, jsonReq(http.MethodPost, "/artists", `{"firstname":"A","lastname":"Lee"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(e, jsonReq(http.MethodPost, "/artists", `{"firstname":"  Jo  ","lastname":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, jsonReq(http.MethodPost, "/artists", `{"firstname":"Ann","lastname":"Lee"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(e, jsonReq(http.MethodPost, "/artist-types", `{"artistId":1,"type":" Singer "}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := body(t, rec)
	assert.Equal(t, "singer", b["type"])
	assert.Equal(t, "Ann Lee", b["artistName"])

	rec = serve(e, jsonReq(http.MethodPost, "/artist-types", `{"artistId":1,"type":"singer"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = serve(e, jsonReq(http.MethodPost, "/artist-types", `{"artistId":9,"type":"singer"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteArtist(t *testing.T) {
	store := &memArtists{
		artists:  []model.Artist{{ID: 1, Firstname: "Ann", Lastname: "Lee"}, {ID: 2, Firstname: "Bo", Lastname: "Ma"}},
		credited: map[uint64]bool{1: true},
	}
	h := NewArtistHandler(store)
	e := newEcho()
	e.DELETE("/artists/admin/:id", h.Delete)

	rec := serve(e, httptest.NewRequest(http.MethodDelete, "/artists/admin/1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/artists/admin/2", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/artists/admin/2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/artists/admin/x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, store.artists, 1)
}

func TestListLocalities(t *testing.T) {
	store := newMemLocations()
	store.localities = []model.Locality{{ID: 1, PostalCode: "1000", Locality: "Bruxelles"}, {ID: 2, PostalCode: "4000", Locality: "Liège"}}
	h := NewLocationHandler(store)
	e := newEcho()
	e.GET("/localities", h.Localities)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/localities", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got []model.Locality
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, store.localities, got)
}
