package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/config"
	registrydomain "github.com/smallbiznis/paymatrix/internal/registry/domain"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(register),
)

// File is the bootstrap registry: projects with their GEO login groups.
type File struct {
	Projects []Project `mapstructure:"projects"`
}

type Project struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
	Geos []Geo  `mapstructure:"geos"`
}

type Geo struct {
	Geo    string   `mapstructure:"geo"`
	Logins []string `mapstructure:"logins"`
}

// Stats counts what a bootstrap created; existing rows are skipped.
type Stats struct {
	Projects int
	Logins   int
}

// Load reads a seed file in any format viper understands.
func Load(path string) (File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return File{}, fmt.Errorf("read seed file %s: %w", path, err)
	}

	var file File
	if err := v.Unmarshal(&file); err != nil {
		return File{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return file, nil
}

// EnsureRegistry creates the projects and logins of file that do not exist
// yet. Running it twice is a no-op.
func EnsureRegistry(ctx context.Context, svc registrydomain.Service, file File) (Stats, error) {
	var stats Stats
	for _, project := range file.Projects {
		name := strings.TrimSpace(project.Name)
		if name == "" {
			name = project.Code
		}
		created, err := svc.CreateProject(ctx, registrydomain.CreateProjectRequest{
			Code: project.Code,
			Name: name,
		})
		switch {
		case err == nil:
			stats.Projects++
		case errors.Is(err, registrydomain.ErrProjectExists):
		default:
			return stats, fmt.Errorf("seed project %q: %w", project.Code, err)
		}

		code := project.Code
		if created != nil {
			code = created.Code
		}
		for _, geo := range project.Geos {
			for _, login := range geo.Logins {
				_, err := svc.AddLogin(ctx, registrydomain.AddLoginRequest{
					Project: code,
					Geo:     geo.Geo,
					Login:   login,
				})
				switch {
				case err == nil:
					stats.Logins++
				case errors.Is(err, registrydomain.ErrLoginExists):
				default:
					return stats, fmt.Errorf("seed login %q in %s/%s: %w", login, code, geo.Geo, err)
				}
			}
		}
	}
	return stats, nil
}

func register(lc fx.Lifecycle, cfg config.Config, svc registrydomain.Service, log *zap.Logger) {
	if cfg.SeedFile == "" {
		return
	}
	log = log.Named("seed")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			file, err := Load(cfg.SeedFile)
			if err != nil {
				return err
			}
			stats, err := EnsureRegistry(ctx, svc, file)
			if err != nil {
				return err
			}
			log.Info("registry seeded",
				zap.String("file", cfg.SeedFile),
				zap.Int("projects_created", stats.Projects),
				zap.Int("logins_created", stats.Logins),
			)
			return nil
		},
	})
}
