package dispatcher_config

import (
	"time"

	"github.com/CareOpsHQ/mednotify/internal/channel"
	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/obs"
	pg "github.com/CareOpsHQ/mednotify/internal/repository/postgres"
	redisx "github.com/CareOpsHQ/mednotify/internal/repository/redis"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type DispatchCfg struct {
	Workers     int           `mapstructure:"workers"`
	BatchSize   int           `mapstructure:"batch_size"`
	Tick        time.Duration `mapstructure:"tick"`
	LeaseTTL    time.Duration `mapstructure:"lease_ttl"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`

	// EnabledChannels is the deployment-wide channel list; a channel absent
	// here is off for every recipient.
	EnabledChannels []string `mapstructure:"enabled_channels"`

	StatsInterval time.Duration `mapstructure:"stats_interval"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
}

func (d *DispatchCfg) Channels() []notification.Channel {
	out := make([]notification.Channel, 0, len(d.EnabledChannels))
	for _, s := range d.EnabledChannels {
		out = append(out, notification.Channel(s))
	}
	return out
}

type RetentionCfg struct {
	Enable   bool          `mapstructure:"enable"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Interval time.Duration `mapstructure:"interval"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) *obs.LogConfig {
	return &obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type Config struct {
	App       App                `mapstructure:"app"`
	DB        pg.Config          `mapstructure:"db"`
	Redis     redisx.Config      `mapstructure:"redis"`
	SMTP      channel.SMTPConfig `mapstructure:"smtp"`
	SMS       channel.SMSConfig  `mapstructure:"sms"`
	Push      channel.PushConfig `mapstructure:"push"`
	Dispatch  DispatchCfg        `mapstructure:"dispatch"`
	Retention RetentionCfg       `mapstructure:"retention"`
	OTEL      OTEL               `mapstructure:"otel"`
	Log       Log                `mapstructure:"log"`
}
