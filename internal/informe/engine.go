// Package informe generates the executive vessel report: live position,
// weather at the vessel's location, public activity records, and the
// analyst narrative on top. Upstream failures degrade into report text
// instead of failing the request; the reader always gets an answer.
package informe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"chancai/internal/analyst"
	"chancai/internal/gfw"
	"chancai/internal/shiptracking"
	"chancai/internal/types"
	"chancai/internal/weather"
)

// DefaultAddressee is used when no logged-in user is attached to the
// request.
const DefaultAddressee = "Estimado usuario"

type Engine struct {
	positions  *shiptracking.Client
	activity   *gfw.Client
	conditions *weather.Client
	ai         *analyst.Client
	logger     *slog.Logger
}

func NewEngine(positions *shiptracking.Client, activity *gfw.Client, conditions *weather.Client, ai *analyst.Client, logger *slog.Logger) *Engine {
	return &Engine{
		positions:  positions,
		activity:   activity,
		conditions: conditions,
		ai:         ai,
		logger:     logger,
	}
}

// Generate builds the report for one vessel, addressed to userName.
// A failed position lookup short-circuits into a report that carries the
// failure text and no coordinates. Weather and activity lookups run
// concurrently once the position is known and degrade independently.
// The returned error is non-nil only for request-scoped failures such as
// context cancellation.
func (e *Engine) Generate(ctx context.Context, imo, userName string) (*types.InformeResponse, error) {
	pos, err := e.positions.Fetch(ctx, imo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("position lookup failed", "imo", imo, "error", err)
		return &types.InformeResponse{Reporte: positionFailureText(err)}, nil
	}

	var coords *[2]float64
	if pos.Lat != nil && pos.Lng != nil {
		coords = &[2]float64{*pos.Lat, *pos.Lng}
	}

	climaLine := "No disponible"
	var activitySection string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if coords == nil {
			return nil
		}
		obs, err := e.conditions.Current(gctx, fmt.Sprintf("%s,%s", formatFloat(coords[0]), formatFloat(coords[1])))
		if err != nil {
			e.logger.Debug("weather lookup failed", "imo", imo, "error", err)
			return nil
		}
		climaLine = fmt.Sprintf("Condición: %s, Viento: %s kph.", obs.Condition, formatFloat(obs.WindKPH))
		return nil
	})
	g.Go(func() error {
		activity, err := e.activity.Lookup(gctx, imo)
		if err != nil {
			e.logger.Warn("activity lookup failed", "imo", imo, "error", err)
			activitySection = activityFailureText(err)
			return nil
		}
		activitySection = renderActivity(activity)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	dataBlock := composeDataBlock(renderPosition(pos), climaLine, activitySection)

	reporte, err := e.ai.Analyze(ctx, userName, dataBlock)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Error("report analysis failed", "imo", imo, "error", err)
		reporte = fmt.Sprintf("Error al generar el análisis de la IA: %v", err)
	}

	return &types.InformeResponse{
		Reporte:     reporte,
		Coordenadas: coords,
		VesselName:  pos.VesselName,
	}, nil
}

func composeDataBlock(position, clima, activity string) string {
	return fmt.Sprintf("**DATOS DE POSICIÓN (MyShipTracking):**\n%s\n\n**CLIMA EN LA UBICACIÓN ACTUAL:**\n%s\n\n**DATOS DE IDENTIDAD Y ACTIVIDAD (Global Fishing Watch):**\n%s",
		position, clima, activity)
}

func renderPosition(p *shiptracking.Position) string {
	lines := []string{
		"nombre_barco: " + textOrNA(p.VesselName),
		"latitud: " + floatOrNA(p.Lat),
		"longitud: " + floatOrNA(p.Lng),
		"velocidad_nudos: " + floatOrNA(p.SpeedKnots),
		"rumbo: " + floatOrNA(p.Course),
		"destino: " + textOrNA(p.Destination),
		"eta: " + textOrNA(p.ETA),
		"ultimo_reporte: " + textOrNA(p.Received),
	}
	return strings.Join(lines, "\n")
}

func renderActivity(a *gfw.Activity) string {
	if note := activityNoteText(a.Note); note != "" {
		return note
	}

	gear := strings.Join(a.Registry.GearTypes, ", ")
	if gear == "" {
		gear = "No especificado"
	}
	sources := strings.Join(a.Registry.Sources, ", ")
	if sources == "" {
		sources = "No disponible"
	}

	lines := []string{
		"nombre_registrado: " + textOrNA(a.Registry.Shipname),
		"bandera: " + textOrNA(a.Registry.Flag),
		"tipo_de_equipo: " + gear,
		"fuentes_de_registro: " + sources,
		"eventos_recientes:",
	}
	if len(a.Events) == 0 {
		lines = append(lines, "- No se han registrado eventos notables en los últimos 90 días.")
	}
	for _, ev := range a.Events {
		tipo := ev.Type
		if tipo == "" {
			tipo = "desconocido"
		}
		lines = append(lines, fmt.Sprintf("- Evento de '%s' iniciado el %s",
			titleWords(tipo), ev.Start.Format("2006-01-02")))
	}
	return strings.Join(lines, "\n")
}

func positionFailureText(err error) string {
	var notFound *shiptracking.NotFoundError
	var upstream *shiptracking.UpstreamError
	switch {
	case errors.Is(err, shiptracking.ErrNotConfigured):
		return "API Key de MyShipTracking no configurada."
	case errors.As(err, &notFound):
		return fmt.Sprintf("No se encontró ningún barco con el número IMO: %s.", notFound.IMO)
	case errors.As(err, &upstream):
		if upstream.Message != "" {
			return upstream.Message
		}
		return "Error desconocido de la API."
	default:
		return "No se pudo conectar con la API de MyShipTracking."
	}
}

func activityFailureText(err error) string {
	var status *gfw.StatusError
	switch {
	case errors.Is(err, gfw.ErrNotConfigured):
		return "API Key de Global Fishing Watch no configurada."
	case errors.As(err, &status):
		return "No fue posible consultar las bases de datos de actividad marítima en este momento."
	default:
		return "No se pudo conectar con la API de Global Fishing Watch."
	}
}

func activityNoteText(n gfw.Note) string {
	switch n {
	case gfw.NoteNoRecords:
		return "No se encontraron registros públicos para este buque."
	case gfw.NoteNoAIS:
		return "El buque existe en GFW pero no tiene información de AIS reportada."
	default:
		return ""
	}
}

func textOrNA(s string) string {
	if s == "" {
		return "No disponible"
	}
	return s
}

func floatOrNA(v *float64) string {
	if v == nil {
		return "No disponible"
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// titleWords renders an event type like "port_visit" as "Port Visit".
func titleWords(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
