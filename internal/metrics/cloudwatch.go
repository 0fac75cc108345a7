package metrics

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"exchangeflow/logger"
)

// putMetricDataAPI is the part of the CloudWatch client used here.
type putMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type cloudWatchState struct {
	client    putMetricDataAPI
	namespace string
	region    string
}

var (
	cwState atomic.Pointer[cloudWatchState]

	// Publishing the same metric more often than this is skipped.
	cloudWatchPublishInterval = 10 * time.Second
	timeNow                   = time.Now
	publishMetricsFunc        = publishMetrics

	lastPublishMu sync.Mutex
	lastPublish   = map[string]time.Time{}
)

func init() {
	cwState.Store(&cloudWatchState{namespace: "ExchangeFlow"})
}

// InitCloudWatch initialises the CloudWatch client using the provided region
// and namespace and routes logger metrics to it. When the client cannot be
// created the function logs a warning and leaves publishing disabled.
func InitCloudWatch(ctx context.Context, region, namespace string) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	state := cloudWatchState{namespace: "ExchangeFlow"}
	state.client = cloudwatch.NewFromConfig(cfg)
	if namespace != "" {
		state.namespace = namespace
	}
	state.region = cfg.Region
	cwState.Store(&state)

	logger.SetMetricSink(func(component, metric string, value float64, unit string, dims map[string]string) {
		fields := logger.Fields{"unit": unit}
		for k, v := range dims {
			fields[k] = v
		}
		publishMetricDatum(Metric{Component: component, Name: metric, Timestamp: timeNow(), Fields: fields}, value)
	})

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")
}

// EmitMetric logs the metric locally, dispatches it to registered handlers
// and publishes it to CloudWatch when configured. Metrics that belong to a
// disabled feature are dropped.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	if f, ok := featureOf(metric); ok && !IsFeatureEnabled(f) {
		return
	}
	metricEvent, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}

	numericValue, ok := logger.ToFloat64(metricEvent.Value)
	if !ok {
		return
	}
	publishMetricDatum(metricEvent, numericValue)
}

func featureOf(metric string) (Feature, bool) {
	switch {
	case strings.Contains(metric, "weight"):
		return FeatureUsedWeight, true
	case strings.HasSuffix(metric, "_queue_length"):
		return FeatureQueueSize, true
	}
	return "", false
}

func publishMetricDatum(metric Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	key := metric.Component + "/" + metric.Name + "/" + metric.Exchange
	now := timeNow()
	lastPublishMu.Lock()
	if last, ok := lastPublish[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		lastPublishMu.Unlock()
		return
	}
	lastPublish[key] = now
	lastPublishMu.Unlock()

	unit := cwtypes.StandardUnitCount
	if rawUnit, ok := metric.Fields["unit"].(string); ok {
		if parsed, found := metricUnitFromString(rawUnit); found {
			unit = parsed
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(metric.Component)}}
	for k, v := range metric.Fields {
		if k == "unit" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	publishMetricsFunc(context.Background(), state, []cwtypes.MetricDatum{{
		MetricName: aws.String(metric.Name),
		Dimensions: dims,
		Timestamp:  aws.Time(metric.Timestamp),
		Unit:       unit,
		Value:      aws.Float64(value),
	}})
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if state == nil || state.client == nil || len(data) == 0 {
		return
	}
	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
	}
}

func resetMetricPublishTimes() {
	lastPublishMu.Lock()
	lastPublish = map[string]time.Time{}
	lastPublishMu.Unlock()
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "bytes":
		return cwtypes.StandardUnitBytes, true
	case "megabytes":
		return cwtypes.StandardUnitMegabytes, true
	case "milliseconds":
		return cwtypes.StandardUnitMilliseconds, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
