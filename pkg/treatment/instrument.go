package treatment

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/types"
)

const defaultPrometheusReloadURL = "http://localhost:9090/-/reload"

// configRewrite edits an instrumentation config file on the host and
// restores the original bytes on recovery
type configRewrite struct {
	path     string
	original []byte
}

func (c *configRewrite) apply(mutate func(doc map[interface{}]interface{})) error {
	contents, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("unable to read config %v: %v", c.path, err)
	}
	c.original = contents
	doc := map[interface{}]interface{}{}
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return fmt.Errorf("config %v is not valid yaml: %v", c.path, err)
	}
	mutate(doc)
	rewritten, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("unable to serialize config %v: %v", c.path, err)
	}
	if err := os.WriteFile(c.path, rewritten, 0644); err != nil {
		return fmt.Errorf("unable to write config %v: %v", c.path, err)
	}
	return nil
}

func (c *configRewrite) restore() error {
	if c.original == nil {
		return nil
	}
	if err := os.WriteFile(c.path, c.original, 0644); err != nil {
		return fmt.Errorf("unable to restore config %v: %v", c.path, err)
	}
	c.original = nil
	return nil
}

// setNested sets doc[path[0]][path[1]]...[path[n-1]] = value, creating
// intermediate maps as needed
func setNested(doc map[interface{}]interface{}, value interface{}, path ...string) {
	current := doc
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[interface{}]interface{})
		if !ok {
			next = map[interface{}]interface{}{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

// samplingTreatment changes the probabilistic sampling percentage of the
// otel collector and restarts it so the pipeline picks up the change
type samplingTreatment struct {
	base
	rewrite    configRewrite
	percentage float64
	// mutate hooks the config change so tail sampling can reuse the
	// restart and restore mechanics
	mutate func(doc map[interface{}]interface{})
}

func newSamplingTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	percentage, err := requirePercentageParam(spec, "percentage")
	if err != nil {
		return nil, err
	}
	config, err := requireParam(spec, "config")
	if err != nil {
		return nil, err
	}
	value := percentageValue(percentage)
	return &samplingTreatment{
		base:       newBase(spec, deps),
		rewrite:    configRewrite{path: config},
		percentage: value,
		mutate: func(doc map[interface{}]interface{}) {
			setNested(doc, value, "processors", "probabilistic_sampler", "sampling_percentage")
		},
	}, nil
}

func newTailSamplingTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	percentage, err := requirePercentageParam(spec, "percentage")
	if err != nil {
		return nil, err
	}
	config, err := requireParam(spec, "config")
	if err != nil {
		return nil, err
	}
	value := percentageValue(percentage)
	policy := map[interface{}]interface{}{
		"name": "faultline-probabilistic",
		"type": "probabilistic",
		"probabilistic": map[interface{}]interface{}{
			"sampling_percentage": value,
		},
	}
	return &samplingTreatment{
		base:       newBase(spec, deps),
		rewrite:    configRewrite{path: config},
		percentage: value,
		mutate: func(doc map[interface{}]interface{}) {
			setNested(doc, []interface{}{policy}, "processors", "tail_sampling", "policies")
		},
	}, nil
}

func (s *samplingTreatment) Inject(ctx context.Context) error {
	s.attempted = true
	if err := s.rewrite.apply(s.mutate); err != nil {
		return s.injectError(err.Error())
	}
	if err := s.deps.Runtime.Restart(ctx, s.deps.ComposeFile, s.target); err != nil {
		return s.injectError(err.Error())
	}
	log.Infof("[Inject]: Set sampling percentage of %v to %v", s.target, s.percentage)
	return nil
}

func (s *samplingTreatment) Recover(ctx context.Context) error {
	if !s.attempted {
		return nil
	}
	if err := s.rewrite.restore(); err != nil {
		return s.recoverError(err.Error())
	}
	if err := s.deps.Runtime.Restart(ctx, s.deps.ComposeFile, s.target); err != nil {
		return s.recoverError(err.Error())
	}
	s.attempted = false
	log.Infof("[Recover]: Restored sampling config of %v", s.target)
	return nil
}

// scrapeIntervalTreatment changes the global prometheus scrape interval
// and reloads prometheus over its lifecycle endpoint
type scrapeIntervalTreatment struct {
	base
	rewrite   configRewrite
	interval  time.Duration
	reloadURL string
	client    *http.Client
}

func newScrapeIntervalTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	interval, err := requireDurationParam(spec, "interval")
	if err != nil {
		return nil, err
	}
	config, err := requireParam(spec, "config")
	if err != nil {
		return nil, err
	}
	return &scrapeIntervalTreatment{
		base:      newBase(spec, deps),
		rewrite:   configRewrite{path: config},
		interval:  interval,
		reloadURL: optionalParam(spec, "reload_url", defaultPrometheusReloadURL),
		client:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *scrapeIntervalTreatment) reload(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.reloadURL, nil)
	if err != nil {
		return err
	}
	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("prometheus reload returned status %v", response.StatusCode)
	}
	return nil
}

func (s *scrapeIntervalTreatment) Inject(ctx context.Context) error {
	s.attempted = true
	err := s.rewrite.apply(func(doc map[interface{}]interface{}) {
		setNested(doc, s.interval.String(), "global", "scrape_interval")
	})
	if err != nil {
		return s.injectError(err.Error())
	}
	if err := s.reload(ctx); err != nil {
		return s.injectError(err.Error())
	}
	log.Infof("[Inject]: Set prometheus scrape interval to %v", s.interval)
	return nil
}

func (s *scrapeIntervalTreatment) Recover(ctx context.Context) error {
	if !s.attempted {
		return nil
	}
	if err := s.rewrite.restore(); err != nil {
		return s.recoverError(err.Error())
	}
	if err := s.reload(ctx); err != nil {
		return s.recoverError(err.Error())
	}
	s.attempted = false
	log.Info("[Recover]: Restored prometheus scrape interval")
	return nil
}

// suppressExportTreatment halts telemetry export by freezing the
// exporting collector service for the treatment window
type suppressExportTreatment struct {
	pauseTreatment
}

func newSuppressExportTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	return &suppressExportTreatment{pauseTreatment{base: newBase(spec, deps)}}, nil
}
