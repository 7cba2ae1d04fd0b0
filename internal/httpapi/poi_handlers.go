package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"cityinfo.org/internal/cityinfo"
	"cityinfo.org/internal/notify"
	"cityinfo.org/internal/patch"
)

// openCity parses cityId, opens a unit of work and confirms the city exists. On
// success the caller owns repo and must Close it.
func (a *API) openCity(w http.ResponseWriter, r *http.Request) (cityinfo.Repository, int, bool) {
	cityID, err := pathID(r, "cityId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return nil, 0, false
	}
	repo, err := a.store.Begin(r.Context())
	if err != nil {
		a.handleStoreError(w, r, err)
		return nil, 0, false
	}
	exists, err := repo.CityExists(r.Context(), cityID)
	if err != nil {
		_ = repo.Close()
		a.handleStoreError(w, r, err)
		return nil, 0, false
	}
	if !exists {
		_ = repo.Close()
		a.logger.Info("city not found when accessing points of interest",
			zap.Int("city_id", cityID),
			zap.String("request_id", RequestIDFromContext(r.Context())),
		)
		writeError(w, r, http.StatusNotFound, "city not found")
		return nil, 0, false
	}
	return repo, cityID, true
}

// loadPointOfInterest resolves {id} within an existing city.
func (a *API) loadPointOfInterest(w http.ResponseWriter, r *http.Request, repo cityinfo.Repository, cityID int) (cityinfo.PointOfInterest, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return cityinfo.PointOfInterest{}, false
	}
	poi, err := repo.GetPointOfInterest(r.Context(), cityID, id)
	if err != nil {
		a.handleStoreError(w, r, err)
		return cityinfo.PointOfInterest{}, false
	}
	return poi, true
}

func (a *API) listPointsOfInterest(w http.ResponseWriter, r *http.Request) {
	repo, cityID, ok := a.openCity(w, r)
	if !ok {
		return
	}
	defer repo.Close()

	pois, err := repo.GetPointsOfInterest(r.Context(), cityID)
	if err != nil {
		a.handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cityinfo.NewPointOfInterestDtos(pois))
}

func (a *API) getPointOfInterest(w http.ResponseWriter, r *http.Request) {
	repo, cityID, ok := a.openCity(w, r)
	if !ok {
		return
	}
	defer repo.Close()

	poi, ok := a.loadPointOfInterest(w, r, repo, cityID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cityinfo.NewPointOfInterestDto(poi))
}

func (a *API) createPointOfInterest(w http.ResponseWriter, r *http.Request) {
	repo, cityID, ok := a.openCity(w, r)
	if !ok {
		return
	}
	defer repo.Close()

	var in cityinfo.PointOfInterestForCreation
	if err := decodeJSON(r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	poi := cityinfo.NewPointOfInterest(cityID, in)
	if err := repo.AddPointOfInterest(r.Context(), cityID, &poi); err != nil {
		a.handleStoreError(w, r, err)
		return
	}
	if err := repo.SaveChanges(r.Context()); err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "poi.create", map[string]any{"city_id": cityID, "poi_id": poi.ID})
	w.Header().Set("Location", fmt.Sprintf("/api/cities/%d/pointsofinterest/%d", cityID, poi.ID))
	writeJSON(w, http.StatusCreated, cityinfo.NewPointOfInterestDto(poi))
}

func (a *API) updatePointOfInterest(w http.ResponseWriter, r *http.Request) {
	repo, cityID, ok := a.openCity(w, r)
	if !ok {
		return
	}
	defer repo.Close()

	poi, ok := a.loadPointOfInterest(w, r, repo, cityID)
	if !ok {
		return
	}

	var in cityinfo.PointOfInterestForUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	poi.ApplyUpdate(in)
	if err := repo.UpdatePointOfInterest(r.Context(), poi); err != nil {
		a.handleStoreError(w, r, err)
		return
	}
	if err := repo.SaveChanges(r.Context()); err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "poi.update", map[string]any{"city_id": cityID, "poi_id": poi.ID})
	w.WriteHeader(http.StatusNoContent)
}

// patchPointOfInterest applies a JSON Patch to the update shape of the item. A
// rejected document or a result failing validation never reaches SaveChanges.
func (a *API) patchPointOfInterest(w http.ResponseWriter, r *http.Request) {
	repo, cityID, ok := a.openCity(w, r)
	if !ok {
		return
	}
	defer repo.Close()

	poi, ok := a.loadPointOfInterest(w, r, repo, cityID)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDecodeError(w, r, err)
		return
	}
	doc, err := patch.Decode(body)
	if err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	patched, err := cityinfo.PatchPointOfInterest(doc, poi.ForUpdate())
	if err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	poi.ApplyUpdate(patched)
	if err := repo.UpdatePointOfInterest(r.Context(), poi); err != nil {
		a.handleStoreError(w, r, err)
		return
	}
	if err := repo.SaveChanges(r.Context()); err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "poi.patch", map[string]any{
		"city_id":    cityID,
		"poi_id":     poi.ID,
		"operations": len(doc),
	})
	w.WriteHeader(http.StatusNoContent)
}

// deletePointOfInterest commits the removal and then hands the notification to
// the dispatcher; notification trouble never changes the response.
func (a *API) deletePointOfInterest(w http.ResponseWriter, r *http.Request) {
	repo, cityID, ok := a.openCity(w, r)
	if !ok {
		return
	}
	defer repo.Close()

	poi, ok := a.loadPointOfInterest(w, r, repo, cityID)
	if !ok {
		return
	}
	if err := repo.DeletePointOfInterest(r.Context(), poi); err != nil {
		a.handleStoreError(w, r, err)
		return
	}
	if err := repo.SaveChanges(r.Context()); err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "poi.delete", map[string]any{"city_id": cityID, "poi_id": poi.ID})
	if a.notifier != nil {
		a.notifier.Notify(notify.PointOfInterestDeleted(poi.Name, poi.ID))
	}
	w.WriteHeader(http.StatusNoContent)
}
