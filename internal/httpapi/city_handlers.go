package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"cityinfo.org/internal/cityinfo"
)

const paginationHeader = "X-Pagination"

func (a *API) listCities(w http.ResponseWriter, r *http.Request) {
	pageNumber, err := queryInt(r, "pageNumber", 1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := queryInt(r, "pageSize", a.defaultPageSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := cityinfo.CityQuery{
		Name:        strings.TrimSpace(r.URL.Query().Get("name")),
		SearchQuery: strings.TrimSpace(r.URL.Query().Get("searchQuery")),
		PageNumber:  pageNumber,
		PageSize:    pageSize,
	}.Clamp(a.maxPageSize)

	repo, err := a.store.Begin(r.Context())
	if err != nil {
		a.handleStoreError(w, r, err)
		return
	}
	defer repo.Close()

	cities, meta, err := repo.GetCities(r.Context(), q)
	if err != nil {
		a.handleStoreError(w, r, err)
		return
	}

	if raw, err := json.Marshal(meta); err == nil {
		w.Header().Set(paginationHeader, string(raw))
	}
	writeJSON(w, http.StatusOK, cityinfo.NewCityWithoutPointsOfInterestDtos(cities))
}

func (a *API) getCity(w http.ResponseWriter, r *http.Request) {
	cityID, err := pathID(r, "cityId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	include, err := queryBool(r, "includePointsOfInterest")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	repo, err := a.store.Begin(r.Context())
	if err != nil {
		a.handleStoreError(w, r, err)
		return
	}
	defer repo.Close()

	city, err := repo.GetCity(r.Context(), cityID, include)
	if err != nil {
		a.handleStoreError(w, r, err)
		return
	}
	if include {
		writeJSON(w, http.StatusOK, cityinfo.NewCityDto(city))
		return
	}
	writeJSON(w, http.StatusOK, cityinfo.NewCityWithoutPointsOfInterestDto(city))
}
