package api

import (
	"github.com/banshee-data/hypocenter/internal/locate"
	"github.com/banshee-data/hypocenter/internal/refdata"
	"github.com/banshee-data/hypocenter/internal/ttime"
)

func toAuthor(a AuthorType) locate.AuthorType {
	switch a {
	case AuthorLocalHuman:
		return locate.AuthorLocalHuman
	case AuthorLocalAuto:
		return locate.AuthorLocalAuto
	case AuthorContribHuman:
		return locate.AuthorContribHuman
	case AuthorContribAuto:
		return locate.AuthorContribAuto
	default:
		return locate.AuthorUnknown
	}
}

// stationKey identifies a Station within one request: station/network/
// location code triple, the fields spec §3 says identify a Station.
type stationKey struct {
	station, network, location string
}

// BuildEvent converts a request payload into a locate.Event: grouping
// picks by station, building the starting Hypocenter (with any
// analyst Bayesian depth prior), and wiring the run's LocatorContext
// (spec §6's heldLoc/heldDepth/prefDepth/bayesDepth/bayesSpread/
// useRstt/noSvd flags).
func BuildEvent(req EventRequest, oracle ttime.Oracle, cratons *refdata.Cratons, zones *refdata.ZoneStatistics) (*locate.Event, error) {
	stations := map[stationKey]*locate.Station{}
	picksByStation := map[stationKey][]*locate.Pick{}
	order := []stationKey{}

	for _, pr := range req.Picks {
		key := stationKey{pr.Station, pr.Network, pr.Location}
		st, ok := stations[key]
		if !ok {
			st = locate.NewStation(pr.Station, pr.Network, pr.Location, pr.StationLat, pr.StationLon, pr.StationElevKm)
			stations[key] = st
			order = append(order, key)
		}

		p := &locate.Pick{
			Station:       st,
			Source:        pr.Source,
			PickID:        pr.PickID,
			Channel:       pr.Channel,
			Quality:       pr.Quality,
			Affinity:      pr.Affinity,
			Author:        toAuthor(pr.Author),
			ArrivalTime:   pr.ArrivalTime,
			OriginalPhase: pr.OriginalPhase,
			LocatorPhase:  pr.LocatorPhase,
			PhaseCode:     pr.OriginalPhase,
			CmndUse:       pr.UsePick,
			Used:          pr.UsePick,
			BestIdx:       -1,
		}
		picksByStation[key] = append(picksByStation[key], p)
	}

	groups := make([]*locate.PickGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, locate.NewPickGroup(stations[key], picksByStation[key]))
	}

	hypo := locate.NewHypocenter(req.OriginTime, req.Lat, req.Lon, req.DepthKm)
	hypo.HeldLoc = req.HeldLoc
	hypo.HeldDepth = req.HeldDepth
	if req.PrefDepth {
		hypo.BayesDepth = req.BayesDepth
		hypo.BayesSpread = req.BayesSpread
		hypo.BayesActive = true
		hypo.BayesFromZoneStats = false
		if req.BayesSpread > 0 {
			hypo.BayesWeight = 1.0 / req.BayesSpread
		}
	}

	ctx := locate.NewLocatorContext(false, req.UseRSTT, !req.NoSVD, 0, cratons, zones)

	for _, p := range picksByStation {
		for _, pick := range p {
			pick.RecomputeTravelTime(hypo.OriginTime)
		}
	}

	return locate.NewEvent(groups, hypo, oracle, ctx), nil
}

// ToResponse translates a RunLocator result (plus the Event it ran
// over) into the JSON response payload (spec §6).
func ToResponse(e *locate.Event, result *locate.LocateResult) *EventResponse {
	co := result.CloseOut

	resp := &EventResponse{
		OriginTime:   e.Hypo.OriginTime,
		Lat:          e.Hypo.Lat,
		Lon:          e.Hypo.Lon,
		DepthKm:      e.Hypo.DepthKm,
		StationCount: e.UsedStationCount(),
		PhaseCount:   e.UsedPickCount(),
	}

	if co != nil {
		resp.AzimGap = co.AzimGap
		resp.RobustGap = co.RobustGap
		resp.SeTime = co.SeTime
		resp.SeLat = co.SeLat
		resp.SeLon = co.SeLon
		resp.SeDepth = co.SeDepth
		resp.SeResid = co.SeResid
		resp.ErrH = co.ErrH
		resp.ErrZ = co.ErrZ
		resp.AveH = co.AveH
		resp.BayesDepth = co.BayesDepth
		resp.BayesSpread = co.BayesSpread
		resp.BayesImport = co.BayesImport
		for i, ax := range co.Ellipsoid {
			resp.Ellipsoid[i] = EllipseAxisResult{SemiKm: ax.SemiKm, AzimuthDeg: ax.AzimuthDeg, PlungeDeg: ax.PlungeDeg}
		}
		resp.Quality = co.Quality
	}
	resp.DelMinDeg = e.MinDistanceDeg()

	for _, g := range e.Groups {
		for _, p := range g.Picks {
			importance := 0.0
			if co != nil {
				importance = co.Importances[p]
			}
			resp.Picks = append(resp.Picks, PickResult{
				PickID:     p.PickID,
				PhaseCode:  p.PhaseCode,
				Residual:   p.Residual,
				DeltaDeg:   g.DeltaDeg,
				AzimuthDeg: g.AzimuthDeg,
				Weight:     p.Weight,
				Importance: importance,
				Used:       p.Used,
			})
		}
	}

	resp.ExitCode = int(locate.SetExitCode(result.Status, result.DelH, result.DelZ))
	return resp
}
