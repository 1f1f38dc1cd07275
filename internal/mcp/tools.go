package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 30 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -30)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.DateOnly, s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolListGyms = mcp.NewTool("list_gyms",
	mcp.WithDescription("List outdoor gyms, sorted by name. Each gym has an id, name, municipality, coordinates and the equipment installed there."),
	mcp.WithString("q", mcp.Description("Case-insensitive name search")),
	mcp.WithString("municipality", mcp.Description("Only gyms in this municipality")),
)

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List exercises. With equipment, only exercises doable with that equipment (plus bodyweight ones) are returned."),
	mcp.WithString("gym_id", mcp.Description("Restrict to exercises possible at this gym")),
	mcp.WithString("q", mcp.Description("Case-insensitive name search")),
	mcp.WithString("equipment", mcp.Description("Comma-separated equipment keys (e.g. 'bars,rings')")),
)

var toolListMethods = mcp.NewTool("list_methods",
	mcp.WithDescription("List training methods (e.g. AMRAP, EMOM, pyramid) with their default sets, reps and timing."),
)

var toolGetWorkouts = mcp.NewTool("get_workouts",
	mcp.WithDescription("Retrieve logged workouts with per-workout summary: method, exercises, done sets, reps, volume, average RPE and duration."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithString("method", mcp.Description("Only workouts using this method key")),
)

var toolGetTrainingSummary = mcp.NewTool("get_training_summary",
	mcp.WithDescription("Aggregate training volume per period: workout count, done sets, reps, volume in kg, average RPE and total duration."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 6 months ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
	mcp.WithString("bucket", mcp.Description("Period size. Defaults to 'week'."), mcp.Enum("day", "week", "month")),
)

// --- Tool handlers ---

func (h *handlers) listGyms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gyms, err := h.ds.ListGyms(ctx, gateway.GymFilter{
		Search:       req.GetString("q", ""),
		Municipality: req.GetString("municipality", ""),
	})
	if err != nil {
		h.log.Error("mcp list_gyms", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	models.SortGyms(gyms)
	return jsonResult(gyms)
}

func (h *handlers) listExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := gateway.ExerciseFilter{
		GymID:  req.GetString("gym_id", ""),
		Search: req.GetString("q", ""),
	}
	if eq := req.GetString("equipment", ""); eq != "" {
		f.EquipmentKeys = models.NormalizeKeys(strings.Split(eq, ","))
	}

	exercises, err := h.ds.ListExercises(ctx, f)
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(exercises)
}

func (h *handlers) listMethods(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	methods, err := h.ds.ListMethods(ctx)
	if err != nil {
		h.log.Error("mcp list_methods", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(methods)
}

func (h *handlers) getWorkouts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	workouts, err := h.ds.ListWorkouts(ctx, gateway.WorkoutFilter{
		UserID: UserIDFromContext(ctx),
		Start:  start,
		End:    end,
	})
	if err != nil {
		h.log.Error("mcp get_workouts", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	if method := req.GetString("method", ""); method != "" {
		filtered := workouts[:0]
		for _, w := range workouts {
			if w.Summary.MethodKey == method {
				filtered = append(filtered, w)
			}
		}
		workouts = filtered
	}
	return jsonResult(workouts)
}

func (h *handlers) getTrainingSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	endStr := req.GetString("end", "")
	startStr := req.GetString("start", "")

	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return mcp.NewToolResultError("invalid end date: " + err.Error()), nil
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return mcp.NewToolResultError("invalid start date: " + err.Error()), nil
		}
	} else {
		start = end.AddDate(0, -6, 0)
	}

	bucket := req.GetString("bucket", "week")
	if !validBucket(bucket) {
		return mcp.NewToolResultError("invalid bucket: " + bucket), nil
	}

	workouts, err := h.ds.ListWorkouts(ctx, gateway.WorkoutFilter{
		UserID: UserIDFromContext(ctx),
		Start:  start,
		End:    end,
	})
	if err != nil {
		h.log.Error("mcp get_training_summary", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(summarizePeriods(workouts, bucket))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
