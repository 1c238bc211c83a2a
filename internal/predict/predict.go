// Package predict bridges the core to the Python model collaborators: the
// trainer script and the prediction scripts for both domains.
package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/antonkoetzler/arbihawk/internal/ingest"
	"github.com/antonkoetzler/arbihawk/internal/logger"
	"github.com/antonkoetzler/arbihawk/internal/modelmgr"
	"github.com/antonkoetzler/arbihawk/internal/models"
	"github.com/antonkoetzler/arbihawk/internal/scheduler"
	"github.com/antonkoetzler/arbihawk/internal/trading"
)

// predictionTTL bounds how long a prediction batch is reused. One betting
// or trading pass finishes well within it.
const predictionTTL = 10 * time.Minute

// Bridge invokes the model scripts and parses their terminal JSON. It
// implements the scheduler's Trainer, the value-bet Predictor, and the
// trading SignalPredictor.
type Bridge struct {
	pythonExe string
	scriptDir string
	timeout   time.Duration
	mgr       *modelmgr.Manager
	cache     *gocache.Cache
	log       *logrus.Logger
}

// New creates a bridge to the scripts in scriptDir.
func New(pythonExe, scriptDir string, timeout time.Duration, mgr *modelmgr.Manager, log *logrus.Logger) *Bridge {
	return &Bridge{
		pythonExe: pythonExe,
		scriptDir: scriptDir,
		timeout:   timeout,
		mgr:       mgr,
		cache:     gocache.New(predictionTTL, predictionTTL),
		log:       log,
	}
}

// trainedModel is one model the trainer script persisted.
type trainedModel struct {
	Market          string          `json:"market"`
	ModelPath       string          `json:"model_path"`
	TrainingSamples int             `json:"training_samples"`
	CVScore         float64         `json:"cv_score"`
	Performance     json.RawMessage `json:"performance"`
}

type trainReport struct {
	Success      bool           `json:"success"`
	HasData      bool           `json:"has_data"`
	NoDataReason string         `json:"no_data_reason"`
	Models       []trainedModel `json:"models"`
}

// Train runs the trainer script for a domain and registers every persisted
// model as the new active version for its market.
func (b *Bridge) Train(ctx context.Context, domain models.Domain, logFn logger.LogFunc) (*scheduler.TrainOutcome, error) {
	raw, err := b.runScript(ctx, "train.py", []string{"--domain", string(domain)}, logFn)
	if err != nil {
		return nil, err
	}

	var report trainReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to parse trainer report: %w", err)
	}

	outcome := &scheduler.TrainOutcome{
		Success:      report.Success,
		HasData:      report.HasData,
		NoDataReason: report.NoDataReason,
	}
	if !report.Success {
		return outcome, nil
	}

	for _, tm := range report.Models {
		perf := "{}"
		if len(tm.Performance) > 0 {
			perf = string(tm.Performance)
		}
		versionID, err := b.mgr.SaveVersion(ctx, domain, tm.Market, tm.ModelPath,
			tm.TrainingSamples, tm.CVScore, perf, true)
		if err != nil {
			return outcome, fmt.Errorf("failed to register model for %s: %w", tm.Market, err)
		}
		outcome.Markets = append(outcome.Markets, tm.Market)
		logFn("info", fmt.Sprintf("Registered model %s for market %s (cv %.3f)", versionID, tm.Market, tm.CVScore))
	}
	b.cache.Flush()
	return outcome, nil
}

// Predict returns the model's outcome probabilities for a fixture and
// market. The script is invoked once per market; per-fixture lookups hit
// the cached batch.
func (b *Bridge) Predict(ctx context.Context, fixture *models.Fixture, market string) (map[string]float64, error) {
	batch, err := b.bettingBatch(ctx, market)
	if err != nil {
		return nil, err
	}
	return batch[fixture.FixtureID], nil
}

func (b *Bridge) bettingBatch(ctx context.Context, market string) (map[string]map[string]float64, error) {
	key := "betting/" + market
	if cached, ok := b.cache.Get(key); ok {
		return cached.(map[string]map[string]float64), nil
	}

	raw, err := b.runScript(ctx, "predict.py",
		[]string{"--domain", "betting", "--market", market}, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Predictions map[string]map[string]float64 `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse predictions for %s: %w", market, err)
	}
	b.cache.Set(key, payload.Predictions, gocache.DefaultExpiration)
	return payload.Predictions, nil
}

// PredictSignal returns the model's confidence for a long entry. Symbols
// absent from the batch score zero, which the confidence gate filters out.
func (b *Bridge) PredictSignal(ctx context.Context, symbol string, assetType models.AssetType, strategy trading.Strategy, features trading.Features) (float64, error) {
	key := "trading/" + string(strategy) + "/" + string(assetType)
	var batch map[string]float64
	if cached, ok := b.cache.Get(key); ok {
		batch = cached.(map[string]float64)
	} else {
		raw, err := b.runScript(ctx, "predict.py",
			[]string{"--domain", "trading", "--strategy", string(strategy), "--asset", string(assetType)}, nil)
		if err != nil {
			return 0, err
		}
		var payload struct {
			Predictions map[string]float64 `json:"predictions"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return 0, fmt.Errorf("failed to parse signal predictions: %w", err)
		}
		batch = payload.Predictions
		b.cache.Set(key, batch, gocache.DefaultExpiration)
	}
	return batch[symbol], nil
}

// runScript executes a model script and extracts its terminal JSON object.
// Non-JSON lines are forwarded to logFn with their parsed level.
func (b *Bridge) runScript(ctx context.Context, script string, args []string, logFn logger.LogFunc) ([]byte, error) {
	runCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	command := append([]string{filepath.Join(b.scriptDir, script)}, args...)
	cmd := exec.CommandContext(runCtx, b.pythonExe, command...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	output, err := cmd.CombinedOutput()

	text := string(output)
	if logFn != nil {
		for _, line := range strings.Split(text, "\n") {
			clean := ingest.StripANSI(line)
			if strings.TrimSpace(clean) == "" || ingest.IsJSONCandidate(clean) {
				continue
			}
			logFn(ingest.ParseLevel(clean), clean)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("model script %s failed: %w", script, err)
	}

	raw, ok := ingest.ExtractLastFunc(text, func([]byte) bool { return true })
	if !ok {
		return nil, fmt.Errorf("model script %s produced no JSON report", script)
	}
	return raw, nil
}
