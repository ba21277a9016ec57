package objstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/spf13/viper"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport/fstransport"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport/miniotransport"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport/s3transport"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport/storjtransport"
)

// DefaultConfigFile is the config file looked up in the XDG config
// directories when NewFromConfig is given no path.
const DefaultConfigFile = "objstore/config.yaml"

// EnvPrefix prefixes environment variables that override file settings,
// e.g. OBJSTORE_MAXPARALLELISM or OBJSTORE_BACKEND_S3_REGION.
const EnvPrefix = "OBJSTORE"

// Backend types
const (
	BackendS3    = "s3"
	BackendMinIO = "minio"
	BackendStorj = "storj"
	BackendFS    = "fs"
)

// FileConfig is the on-disk configuration. Durations are in milliseconds.
type FileConfig struct {
	MaxChunkBytes          int64         `yaml:"maxChunkBytes" mapstructure:"maxChunkBytes" validate:"gt=0"`
	MaxParallelism         int           `yaml:"maxParallelism" mapstructure:"maxParallelism" validate:"gt=0,lte=1024"`
	MaxAttempts            int           `yaml:"maxAttempts" mapstructure:"maxAttempts" validate:"gte=1,lte=100"`
	BaseBackoffMs          int64         `yaml:"baseBackoffMs" mapstructure:"baseBackoffMs" validate:"gt=0"`
	MaxBackoffMs           int64         `yaml:"maxBackoffMs" mapstructure:"maxBackoffMs" validate:"gtefield=BaseBackoffMs"`
	CallTimeoutMs          int64         `yaml:"callTimeoutMs" mapstructure:"callTimeoutMs" validate:"gte=0"`
	SessionDeadlineMs      int64         `yaml:"sessionDeadlineMs" mapstructure:"sessionDeadlineMs" validate:"gte=0"`
	ChecksumAlgorithm      string        `yaml:"checksumAlgorithm" mapstructure:"checksumAlgorithm" validate:"oneof=sha256 crc32c blake3"`
	ChunkChecksumAlgorithm string        `yaml:"chunkChecksumAlgorithm" mapstructure:"chunkChecksumAlgorithm" validate:"oneof=sha256 crc32c blake3"`
	ChunkRetryBudget       int           `yaml:"chunkRetryBudget" mapstructure:"chunkRetryBudget" validate:"gte=0"`
	ContainerCacheTTLMs    int64         `yaml:"containerCacheTtlMs" mapstructure:"containerCacheTtlMs" validate:"gte=0"`
	ListPageSize           int           `yaml:"listPageSize" mapstructure:"listPageSize" validate:"gt=0"`
	Backend                BackendConfig `yaml:"backend" mapstructure:"backend"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	Type  string       `yaml:"type" mapstructure:"type" validate:"required,oneof=s3 minio storj fs"`
	S3    S3Backend    `yaml:"s3" mapstructure:"s3"`
	MinIO MinIOBackend `yaml:"minio" mapstructure:"minio"`
	Storj StorjBackend `yaml:"storj" mapstructure:"storj"`
	FS    FSBackend    `yaml:"fs" mapstructure:"fs"`
}

// S3Backend configures Amazon S3 or an S3-compatible endpoint.
type S3Backend struct {
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	UsePathStyle    bool   `yaml:"usePathStyle" mapstructure:"usePathStyle"`
	AccessKeyID     string `yaml:"accessKeyId" mapstructure:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey" mapstructure:"secretAccessKey" validate:"required_with=AccessKeyID"`
	SessionToken    string `yaml:"sessionToken" mapstructure:"sessionToken"`
}

// MinIOBackend configures a MinIO server. Endpoint is host[:port] without a scheme.
type MinIOBackend struct {
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId" mapstructure:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey" mapstructure:"secretAccessKey"`
	SessionToken    string `yaml:"sessionToken" mapstructure:"sessionToken"`
	Region          string `yaml:"region" mapstructure:"region"`
	Secure          bool   `yaml:"secure" mapstructure:"secure"`
}

// StorjBackend configures a Storj project.
type StorjBackend struct {
	AccessGrant string `yaml:"accessGrant" mapstructure:"accessGrant"`
}

// FSBackend configures the filesystem backend. An empty root keeps objects in memory.
type FSBackend struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// DefaultFileConfig returns the file configuration matching DefaultConfiguration.
func DefaultFileConfig() FileConfig {
	d := objtypes.DefaultConfiguration()
	return FileConfig{
		MaxChunkBytes:          d.MaxChunkBytes,
		MaxParallelism:         d.MaxParallelism,
		MaxAttempts:            d.MaxAttempts,
		BaseBackoffMs:          d.BaseBackoff.Milliseconds(),
		MaxBackoffMs:           d.MaxBackoff.Milliseconds(),
		ChecksumAlgorithm:      string(d.ChecksumAlgorithm),
		ChunkChecksumAlgorithm: string(d.ChunkChecksumAlgorithm),
		ChunkRetryBudget:       d.ChunkRetryBudget,
		ContainerCacheTTLMs:    d.ContainerCacheTTL.Milliseconds(),
		ListPageSize:           d.ListPageSize,
	}
}

// Configuration converts the file settings into client tunables.
func (fc FileConfig) Configuration() objtypes.Configuration {
	return objtypes.Configuration{
		MaxChunkBytes:          fc.MaxChunkBytes,
		MaxParallelism:         fc.MaxParallelism,
		MaxAttempts:            fc.MaxAttempts,
		BaseBackoff:            millis(fc.BaseBackoffMs),
		MaxBackoff:             millis(fc.MaxBackoffMs),
		CallTimeout:            millis(fc.CallTimeoutMs),
		SessionDeadline:        millis(fc.SessionDeadlineMs),
		ChecksumAlgorithm:      objtypes.ChecksumAlgorithm(fc.ChecksumAlgorithm),
		ChunkChecksumAlgorithm: objtypes.ChecksumAlgorithm(fc.ChunkChecksumAlgorithm),
		ChunkRetryBudget:       fc.ChunkRetryBudget,
		ContainerCacheTTL:      millis(fc.ContainerCacheTTLMs),
		ListPageSize:           fc.ListPageSize,
	}
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// LoadConfig reads a YAML, JSON or TOML file (by extension) and applies
// OBJSTORE_* environment overrides. An empty path reads the environment only.
// Unset keys take their defaults.
func LoadConfig(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, objerrors.NewError("loadConfig", objerrors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("read %s: %v", path, err))
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, objerrors.NewError("loadConfig", objerrors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("decode config: %v", err))
	}
	if err := validate("loadConfig", fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// DefaultConfigPath returns the first DefaultConfigFile found in
// $XDG_CONFIG_HOME or $XDG_CONFIG_DIRS, or "" when there is none.
func DefaultConfigPath() string {
	p, err := xdg.SearchConfigFile(DefaultConfigFile)
	if err != nil {
		return ""
	}
	return p
}

// setDefaults registers every key so that environment overrides apply to
// keys missing from the file.
func setDefaults(v *viper.Viper) {
	d := DefaultFileConfig()
	v.SetDefault("maxChunkBytes", d.MaxChunkBytes)
	v.SetDefault("maxParallelism", d.MaxParallelism)
	v.SetDefault("maxAttempts", d.MaxAttempts)
	v.SetDefault("baseBackoffMs", d.BaseBackoffMs)
	v.SetDefault("maxBackoffMs", d.MaxBackoffMs)
	v.SetDefault("callTimeoutMs", d.CallTimeoutMs)
	v.SetDefault("sessionDeadlineMs", d.SessionDeadlineMs)
	v.SetDefault("checksumAlgorithm", d.ChecksumAlgorithm)
	v.SetDefault("chunkChecksumAlgorithm", d.ChunkChecksumAlgorithm)
	v.SetDefault("chunkRetryBudget", d.ChunkRetryBudget)
	v.SetDefault("containerCacheTtlMs", d.ContainerCacheTTLMs)
	v.SetDefault("listPageSize", d.ListPageSize)

	for _, key := range []string{
		"backend.type",
		"backend.s3.region", "backend.s3.endpoint", "backend.s3.accessKeyId",
		"backend.s3.secretAccessKey", "backend.s3.sessionToken",
		"backend.minio.endpoint", "backend.minio.accessKeyId", "backend.minio.secretAccessKey",
		"backend.minio.sessionToken", "backend.minio.region",
		"backend.storj.accessGrant",
		"backend.fs.root",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("backend.s3.usePathStyle", false)
	v.SetDefault("backend.minio.secure", false)
}

// OpenTransport builds the transport selected by cfg.Type.
func OpenTransport(ctx context.Context, cfg BackendConfig) (transport.Transport, error) {
	if err := validate("openTransport", cfg); err != nil {
		return nil, err
	}

	var (
		t   transport.Transport
		err error
	)
	switch cfg.Type {
	case BackendS3:
		t, err = nonNil(s3transport.NewFromConfig(ctx, s3transport.Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
		}))
	case BackendMinIO:
		t, err = nonNil(miniotransport.NewFromConfig(miniotransport.Config{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			SessionToken:    cfg.MinIO.SessionToken,
			Region:          cfg.MinIO.Region,
			Secure:          cfg.MinIO.Secure,
		}))
	case BackendStorj:
		t, err = nonNil(storjtransport.NewFromAccessGrant(ctx, cfg.Storj.AccessGrant))
	case BackendFS:
		if cfg.FS.Root == "" {
			t = fstransport.NewMemory()
		} else {
			t = fstransport.NewOS(cfg.FS.Root)
		}
	}
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}
	return nil, objerrors.NewError("openTransport", objerrors.ErrInvalidInput).
		WithMessage(fmt.Sprintf("unknown backend type %q", cfg.Type))
}

// nonNil keeps a nil concrete transport from becoming a non-nil interface.
func nonNil[T transport.Transport](t T, err error) (transport.Transport, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}

type configValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

var (
	validatorOnce sync.Once
	sharedValid   *configValidator
)

func newConfigValidator() *configValidator {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	// translations only affect message text
	_ = entranslations.RegisterDefaultTranslations(v, trans)
	v.RegisterStructValidation(validateBackend, BackendConfig{})

	return &configValidator{validate: v, trans: trans}
}

// validateBackend requires the settings of the selected backend.
func validateBackend(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(BackendConfig)
	if !ok {
		return
	}
	switch cfg.Type {
	case BackendMinIO:
		if cfg.MinIO.Endpoint == "" {
			sl.ReportError(cfg.MinIO.Endpoint, "MinIO.Endpoint", "Endpoint", "required", "")
		}
	case BackendStorj:
		if cfg.Storj.AccessGrant == "" {
			sl.ReportError(cfg.Storj.AccessGrant, "Storj.AccessGrant", "AccessGrant", "required", "")
		}
	}
}

// validate checks v's validate tags and reports every violation in one ErrInvalidInput.
func validate(op string, v any) error {
	validatorOnce.Do(func() { sharedValid = newConfigValidator() })

	err := sharedValid.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return objerrors.NewError(op, objerrors.ErrInvalidInput).WithMessage(err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(sharedValid.trans))
	}
	sort.Strings(msgs)
	return objerrors.NewError(op, objerrors.ErrInvalidInput).WithMessage(strings.Join(msgs, "; "))
}
