package esi

import (
	"context"
	"fmt"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bytedance/sonic"
)

// Player structures live above this id range; stations below it are public.
const StructureIDThreshold = 10_000_000_000

type StationInfo struct {
	SystemID int64  `json:"system_id"`
	Name     string `json:"name"`
}

func (c *Client) Station(ctx context.Context, stationID int64) (StationInfo, error) {
	page, err := c.get(ctx, request{path: fmt.Sprintf("/v2/universe/stations/%d/", stationID)})
	if err != nil {
		return StationInfo{}, err
	}
	var info StationInfo
	if err := sonic.Unmarshal(page.Body, &info); err != nil {
		return StationInfo{}, fmt.Errorf("can't decode station %d: %w", stationID, err)
	}
	return info, nil
}

type SystemInfo struct {
	ConstellationID int64   `json:"constellation_id"`
	Name            string  `json:"name"`
	Stargates       []int64 `json:"stargates"`
}

func (c *Client) System(ctx context.Context, systemID int64) (SystemInfo, error) {
	page, err := c.get(ctx, request{path: fmt.Sprintf("/v4/universe/systems/%d/", systemID)})
	if err != nil {
		return SystemInfo{}, err
	}
	var info SystemInfo
	if err := sonic.Unmarshal(page.Body, &info); err != nil {
		return SystemInfo{}, fmt.Errorf("can't decode system %d: %w", systemID, err)
	}
	return info, nil
}

type ConstellationInfo struct {
	RegionID int64  `json:"region_id"`
	Name     string `json:"name"`
}

func (c *Client) Constellation(ctx context.Context, constellationID int64) (ConstellationInfo, error) {
	page, err := c.get(ctx, request{path: fmt.Sprintf("/v1/universe/constellations/%d/", constellationID)})
	if err != nil {
		return ConstellationInfo{}, err
	}
	var info ConstellationInfo
	if err := sonic.Unmarshal(page.Body, &info); err != nil {
		return ConstellationInfo{}, fmt.Errorf("can't decode constellation %d: %w", constellationID, err)
	}
	return info, nil
}

type StargateInfo struct {
	Destination struct {
		SystemID int64 `json:"system_id"`
	} `json:"destination"`
}

func (c *Client) Stargate(ctx context.Context, stargateID int64) (StargateInfo, error) {
	page, err := c.get(ctx, request{path: fmt.Sprintf("/v1/universe/stargates/%d/", stargateID)})
	if err != nil {
		return StargateInfo{}, err
	}
	var info StargateInfo
	if err := sonic.Unmarshal(page.Body, &info); err != nil {
		return StargateInfo{}, fmt.Errorf("can't decode stargate %d: %w", stargateID, err)
	}
	return info, nil
}

type StructureInfo struct {
	SolarSystemID int64  `json:"solar_system_id"`
	Name          string `json:"name"`
}

// Structure reads player-structure metadata; requires docking access.
func (c *Client) Structure(ctx context.Context, account model.Account, structureID int64) (StructureInfo, error) {
	page, err := c.get(ctx, request{
		path:    fmt.Sprintf("/v2/universe/structures/%d/", structureID),
		account: &account,
	})
	if err != nil {
		return StructureInfo{}, err
	}
	var info StructureInfo
	if err := sonic.Unmarshal(page.Body, &info); err != nil {
		return StructureInfo{}, fmt.Errorf("can't decode structure %d: %w", structureID, err)
	}
	return info, nil
}

type nameEntry struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Names resolves up to 1000 ids to display names.
func (c *Client) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	c.limiter.Take()
	body, err := sonic.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("can't encode name ids: %w", err)
	}

	resp, err := c.c.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/v3/universe/names/")
	if err != nil {
		return nil, fmt.Errorf("can't request names: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), URL: "/v3/universe/names/"}
	}

	var entries []nameEntry
	if err := sonic.Unmarshal(resp.Bytes(), &entries); err != nil {
		return nil, fmt.Errorf("can't decode names: %w", err)
	}

	names := make(map[int64]string, len(entries))
	for _, e := range entries {
		names[e.ID] = e.Name
	}
	return names, nil
}
