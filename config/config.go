package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Configs struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level" split_words:"true"`

	Database  DatabaseConfigs `toml:"database"`
	ApiServer ServerConfigs   `toml:"api_server" split_words:"true"`
	Auth      AuthConfigs     `toml:"auth"`
	Redis     RedisConfigs    `toml:"redis"`
	Kafka     KafkaConfigs    `toml:"kafka"`
	Pi        PiConfigs       `toml:"pi"`
	Drop      DropConfigs     `toml:"drop"`
}

type DatabaseConfigs struct {
	// Driver is either "postgres" or "mysql".
	Driver   string        `toml:"driver"`
	Host     string        `toml:"host"`
	Port     string        `toml:"port"`
	Database string        `toml:"database"`
	User     string        `toml:"user"`
	Password string        `toml:"password"`
	SSLMode  string        `toml:"ssl_mode" split_words:"true"`
	Timeout  time.Duration `toml:"timeout"`
}

func (d *DatabaseConfigs) ConnectionString() string {
	if d.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User,
			d.Password,
			d.Host,
			d.Port,
			d.Database,
		)
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Database,
		sslMode,
	)
}

type ServerConfigs struct {
	Host           string   `toml:"host"`
	Port           string   `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins" split_words:"true"`
}

func (s ServerConfigs) Address() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

type AuthConfigs struct {
	// OperatorSecret signs the tokens accepted by the operator endpoints.
	OperatorSecret     string        `toml:"operator_secret" split_words:"true"`
	OperatorExpiration time.Duration `toml:"operator_expiration" split_words:"true"`
}

type RedisConfigs struct {
	Addr string `toml:"addr"`
}

type KafkaConfigs struct {
	Addr            string `toml:"addr"`
	SettlementTopic string `toml:"settlement_topic" split_words:"true"`
}

type PiConfigs struct {
	Endpoint string        `toml:"endpoint"`
	APIKey   string        `toml:"api_key" split_words:"true"`
	Timeout  time.Duration `toml:"timeout"`

	// SignerEndpoint is the wallet service which signs and submits the
	// blockchain transaction of app-to-user payments.
	SignerEndpoint string `toml:"signer_endpoint" split_words:"true"`
	SignerToken    string `toml:"signer_token" split_words:"true"`
}

type DropConfigs struct {
	// UTCOffset is the fixed offset of the operator's reference timezone.
	UTCOffset time.Duration `toml:"utc_offset" split_words:"true"`
	Hour      int           `toml:"hour"`

	WinnerShare decimal.Decimal `toml:"winner_share" split_words:"true"`
	Precision   int32           `toml:"precision"`

	// PlatformUID receives the platform fee.
	PlatformUID string `toml:"platform_uid" split_words:"true"`

	// Tiers maps a payment amount ("5.00") to the number of entries it buys.
	Tiers map[string]int `toml:"tiers"`

	ReferralCodes        []string `toml:"referral_codes" split_words:"true"`
	ReferralCodeEntries  int      `toml:"referral_code_entries" split_words:"true"`
	ReferralBonusEntries int      `toml:"referral_bonus_entries" split_words:"true"`

	PotCacheTTL      time.Duration `toml:"pot_cache_ttl" split_words:"true"`
	PayoutRetryEvery time.Duration `toml:"payout_retry_every" split_words:"true"`

	// DrawAttempts and DrawBackoff bound the retries of a drop whose store
	// is unavailable. The backoff doubles after every attempt.
	DrawAttempts int           `toml:"draw_attempts" split_words:"true"`
	DrawBackoff  time.Duration `toml:"draw_backoff" split_words:"true"`
}

func Default() Configs {
	return Configs{
		Env:      "local",
		LogLevel: "info",
		Database: DatabaseConfigs{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    "5432",
			Timeout: 10 * time.Second,
		},
		ApiServer: ServerConfigs{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Auth: AuthConfigs{
			OperatorExpiration: 24 * time.Hour,
		},
		Redis: RedisConfigs{Addr: "localhost:6379"},
		Kafka: KafkaConfigs{SettlementTopic: "drop_settlement"},
		Pi: PiConfigs{
			Endpoint: "https://api.minepi.com/v2",
			Timeout:  15 * time.Second,
		},
		Drop: DropConfigs{
			UTCOffset:   -7 * time.Hour,
			Hour:        19,
			WinnerShare: decimal.RequireFromString("0.95"),
			Precision:   7,
			Tiers: map[string]int{
				"1.00":  10,
				"5.00":  60,
				"10.00": 150,
			},
			ReferralCodeEntries:  5,
			ReferralBonusEntries: 10,
			PotCacheTTL:          5 * time.Second,
			PayoutRetryEvery:     5 * time.Minute,
			DrawAttempts:         5,
			DrawBackoff:          30 * time.Second,
		},
	}
}

// Load reads the TOML file at path on top of Default, then applies DROP_*
// environment overrides. An empty path skips the file.
func Load(path string) (Configs, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Configs{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := envconfig.Process("drop", &cfg); err != nil {
		return Configs{}, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Configs{}, err
	}

	return cfg, nil
}

func (c Configs) Validate() error {
	if c.Drop.Hour < 0 || c.Drop.Hour > 23 {
		return fmt.Errorf("drop.hour must be in [0, 23], got %d", c.Drop.Hour)
	}

	if c.Drop.WinnerShare.LessThan(decimal.Zero) || c.Drop.WinnerShare.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("drop.winner_share must be in [0, 1], got %s", c.Drop.WinnerShare)
	}

	if c.Drop.Precision < 0 {
		return fmt.Errorf("drop.precision must not be negative")
	}

	if c.Drop.DrawAttempts < 1 {
		return fmt.Errorf("drop.draw_attempts must be at least 1, got %d", c.Drop.DrawAttempts)
	}

	if len(c.Drop.Tiers) == 0 {
		return fmt.Errorf("drop.tiers must not be empty")
	}

	return nil
}
