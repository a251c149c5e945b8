package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Danny02/garagen-flohmarkt/core"
	"github.com/Danny02/garagen-flohmarkt/ports"
)

const geocodeTimeout = 3 * time.Second

// StandService handles the stand CRUD surface the credential system
// authorizes. It owns validation, defaulting, the public projection, and the
// best-effort geocoding lookup at creation.
type StandService struct {
	store    ports.Store
	geocoder ports.Geocoder
	events   ports.EventPublisher
	logger   *zap.Logger
}

// NewStandService creates a new stand service. geocoder may be nil to skip
// coordinate lookups entirely.
func NewStandService(store ports.Store, geocoder ports.Geocoder, events ports.EventPublisher, logger *zap.Logger) *StandService {
	return &StandService{
		store:    store,
		geocoder: geocoder,
		events:   events,
		logger:   logger,
	}
}

// CreateStandRequest is the payload for registering a new stand. EditSecret
// is optional: supplying an existing owner token attaches the new stand to
// that owner (multi-stand ownership).
type CreateStandRequest struct {
	Label      string   `json:"label"`
	Address    string   `json:"address"`
	PLZ        string   `json:"plz"`
	District   string   `json:"district"`
	Desc       string   `json:"desc"`
	Categories []string `json:"categories"`
	TimeFrom   string   `json:"time_from"`
	TimeTo     string   `json:"time_to"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	EditSecret string   `json:"editSecret"`
}

func validateCategories(categories []string) error {
	var unknown []string
	for _, c := range categories {
		if !core.CategoryAllowed(c) {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown categories: %s", core.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return nil
}

// Create validates, defaults, and persists a new stand. The returned stand is
// the private view carrying the edit secret; this is the only time the
// secret leaves the server.
func (s *StandService) Create(ctx context.Context, req CreateStandRequest) (core.Stand, error) {
	if strings.TrimSpace(req.Address) == "" {
		return core.Stand{}, fmt.Errorf("%w: address is required", core.ErrInvalidInput)
	}
	if err := validateCategories(req.Categories); err != nil {
		return core.Stand{}, err
	}

	editSecret := req.EditSecret
	if editSecret == "" {
		editSecret = uuid.New().String()
	}

	stand := core.Stand{
		ID:         uuid.New().String(),
		Label:      strings.TrimSpace(req.Label),
		Address:    strings.TrimSpace(req.Address),
		PLZ:        orDefault(req.PLZ, core.DefaultPLZ),
		District:   orDefault(req.District, core.DefaultDistrict),
		Desc:       strings.TrimSpace(req.Desc),
		Categories: req.Categories,
		TimeFrom:   orDefault(req.TimeFrom, core.DefaultTimeFrom),
		TimeTo:     orDefault(req.TimeTo, core.DefaultTimeTo),
		Lat:        req.Lat,
		Lng:        req.Lng,
		Open:       true,
		Approved:   false,
		CreatedAt:  time.Now().UTC(),
		EditSecret: editSecret,
	}

	if stand.Lat == nil && stand.Lng == nil {
		s.geocode(ctx, &stand)
	}

	if err := putJSON(ctx, s.store, standKey(stand.ID), stand); err != nil {
		return core.Stand{}, err
	}

	if err := s.events.PublishStandCreated(ctx, stand.ID); err != nil {
		s.logger.Warn("failed to publish stand event", zap.Error(err))
	}
	return stand, nil
}

// geocode fills in coordinates if the lookup succeeds within its deadline.
// Failure is silent apart from a debug log: stands without coordinates are
// valid.
func (s *StandService) geocode(ctx context.Context, stand *core.Stand) {
	if s.geocoder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	lat, lng, err := s.geocoder.Geocode(ctx, stand.Address, stand.PLZ)
	if err != nil {
		s.logger.Debug("geocoding failed", zap.String("stand", stand.ID), zap.Error(err))
		return
	}
	stand.Lat = &lat
	stand.Lng = &lng
}

// List returns the public view of all stands, oldest first.
func (s *StandService) List(ctx context.Context) ([]core.StandPublic, error) {
	keys, err := s.store.List(ctx, standKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}

	stands := make([]core.StandPublic, 0, len(keys))
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if errors.Is(err, ports.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
		}
		var stand core.Stand
		if err := json.Unmarshal([]byte(raw), &stand); err != nil {
			s.logger.Warn("skipping corrupt stand record", zap.String("key", key))
			continue
		}
		stands = append(stands, stand.Public())
	}

	sort.Slice(stands, func(i, j int) bool {
		return stands[i].CreatedAt.Before(stands[j].CreatedAt)
	})
	return stands, nil
}

// Get returns the public view of one stand.
func (s *StandService) Get(ctx context.Context, id string) (core.StandPublic, error) {
	stand, err := getStand(ctx, s.store, id)
	if err != nil {
		return core.StandPublic{}, err
	}
	return stand.Public(), nil
}

// Load returns the full stand record including the edit secret, for
// server-side use by the authorization gate. Never serialize the result
// directly.
func (s *StandService) Load(ctx context.Context, id string) (core.Stand, error) {
	return getStand(ctx, s.store, id)
}

// UpdateStandRequest is a partial update. Nil fields are left unchanged.
// ID, creation time, and the edit secret can never be overwritten; Approved
// is only applied when the caller holds admin rights.
type UpdateStandRequest struct {
	Label      *string   `json:"label"`
	Address    *string   `json:"address"`
	PLZ        *string   `json:"plz"`
	District   *string   `json:"district"`
	Desc       *string   `json:"desc"`
	Categories *[]string `json:"categories"`
	TimeFrom   *string   `json:"time_from"`
	TimeTo     *string   `json:"time_to"`
	Lat        *float64  `json:"lat"`
	Lng        *float64  `json:"lng"`
	Open       *bool     `json:"open"`
	Approved   *bool     `json:"approved"`
}

// Update applies a partial update to an already-authorized stand.
func (s *StandService) Update(ctx context.Context, stand core.Stand, req UpdateStandRequest, admin bool) (core.Stand, error) {
	if req.Address != nil && strings.TrimSpace(*req.Address) == "" {
		return core.Stand{}, fmt.Errorf("%w: address is required", core.ErrInvalidInput)
	}
	if req.Categories != nil {
		if err := validateCategories(*req.Categories); err != nil {
			return core.Stand{}, err
		}
	}

	if req.Label != nil {
		stand.Label = strings.TrimSpace(*req.Label)
	}
	if req.Address != nil {
		stand.Address = strings.TrimSpace(*req.Address)
	}
	if req.PLZ != nil {
		stand.PLZ = *req.PLZ
	}
	if req.District != nil {
		stand.District = *req.District
	}
	if req.Desc != nil {
		stand.Desc = strings.TrimSpace(*req.Desc)
	}
	if req.Categories != nil {
		stand.Categories = *req.Categories
	}
	if req.TimeFrom != nil {
		stand.TimeFrom = *req.TimeFrom
	}
	if req.TimeTo != nil {
		stand.TimeTo = *req.TimeTo
	}
	if req.Lat != nil {
		stand.Lat = req.Lat
	}
	if req.Lng != nil {
		stand.Lng = req.Lng
	}
	if req.Open != nil {
		stand.Open = *req.Open
	}
	if req.Approved != nil && admin {
		stand.Approved = *req.Approved
	}

	if err := putJSON(ctx, s.store, standKey(stand.ID), stand); err != nil {
		return core.Stand{}, err
	}
	return stand, nil
}

// Delete removes an already-authorized stand.
func (s *StandService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, standKey(id)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if err := s.events.PublishStandDeleted(ctx, id); err != nil {
		s.logger.Warn("failed to publish stand event", zap.Error(err))
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
