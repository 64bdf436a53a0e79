package storage

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/rickgao/stockdesk/internal/config"
)

// ApplicationName is reported to Postgres for every pooled connection.
const ApplicationName = "stockdesk"

// BuildConnString builds a pgxpool connection URL from config. Pool sizing is
// passed as pool_max_conns / pool_min_conns so pgxpool.ParseConfig applies it.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)
	if cfg.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		q.Set("pool_min_conns", strconv.Itoa(cfg.MinConns))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
