package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/cbtwine/attendance/internal/config"
)

// bodyRecorder tees the response to the client and keeps up to limit
// bytes for the cache.
type bodyRecorder struct {
    http.ResponseWriter
    status    int
    buf       bytes.Buffer
    limit     int64
    truncated bool
}

func (w *bodyRecorder) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
    if !w.truncated {
        if w.limit > 0 && int64(w.buf.Len()+len(b)) > w.limit {
            w.truncated = true
            w.buf.Reset()
        } else {
            w.buf.Write(b)
        }
    }
    return w.ResponseWriter.Write(b)
}

// orgKeyPrefix is the part of every cache key shared by one organisation;
// InvalidateOrg deletes by it.
func orgKeyPrefix(prefix, org string) string {
    return prefix + ":org:" + org + ":"
}

// cacheKey hashes the parts of the request selected by the strategy.  The
// organisation stays in clear text ahead of the hash so entries can be
// dropped per organisation.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    var parts []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "route":
        parts = []string{"route", c.Path()}
    case "route_query":
        parts = []string{"route", c.Path(), "q", r.URL.RawQuery}
    case "org_route":
        parts = []string{"route", c.Path(), "params", strings.Join(c.ParamValues(), "/")}
    default: // org_route_query
        parts = []string{"route", c.Path(), "params", strings.Join(c.ParamValues(), "/"), "q", r.URL.RawQuery}
    }
    // the weekday is part of the answer for "today" listings
    parts = append(parts, "day", strconv.Itoa(int(time.Now().UTC().Weekday())))
    sum := sha1.Sum([]byte(r.Method + ":" + strings.Join(parts, ":")))
    return fmt.Sprintf("%s%x", orgKeyPrefix(cfg.Prefix, orgID(c)), sum[:])
}

// Entries are stored as [4 bytes status][4 bytes header length][header JSON][body].
func packEntry(status int, header http.Header, body []byte) ([]byte, error) {
    hdr, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8, 8+len(hdr)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
    out = append(out, hdr...)
    return append(out, body...), nil
}

func unpackEntry(bs []byte) (int, http.Header, []byte, bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status := int(binary.BigEndian.Uint32(bs[0:4]))
    n := int(binary.BigEndian.Uint32(bs[4:8]))
    if n < 0 || 8+n > len(bs) {
        return 0, nil, nil, false
    }
    hdr := http.Header{}
    if n > 0 {
        if err := json.Unmarshal(bs[8:8+n], &hdr); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, hdr, bs[8+n:], true
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewRedisCache caches successful responses of the configured methods in
// Redis, keyed per organisation.  Hits are answered with the stored status,
// headers and body plus "X-Cache: HIT".  Redis errors fall through to the
// handler.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passThrough
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 30 * time.Second
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            ctx := c.Request().Context()
            key := cacheKey(cfg, c)

            if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
                if status, hdr, body, ok := unpackEntry(bs); ok {
                    h := c.Response().Header()
                    for k, vals := range hdr {
                        if strings.EqualFold(k, echo.HeaderContentLength) {
                            continue
                        }
                        h[k] = vals
                    }
                    h.Set("X-Cache", "HIT")
                    c.Response().WriteHeader(status)
                    _, err := c.Response().Write(body)
                    return err
                }
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.truncated {
                return nil
            }
            hdr := c.Response().Header().Clone()
            hdr.Del("X-Cache")
            entry, err := packEntry(rec.status, hdr, rec.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := rdb.Set(context.WithoutCancel(ctx), key, entry, ttl).Err(); err != nil {
                c.Logger().Warnf("cache: store %s: %v", key, err)
            }
            return nil
        }
    }
}

// CacheInvalidator drops cached responses of an organisation after its
// data changed.  A nil client makes it a no-op.
type CacheInvalidator struct {
    Prefix string
    RDB    *redis.Client
}

// InvalidateOrg deletes every cache entry of org.  Failures are logged;
// entries then expire with their TTL.
func (ci CacheInvalidator) InvalidateOrg(ctx context.Context, org uint64) {
    if ci.RDB == nil {
        return
    }
    match := orgKeyPrefix(ci.Prefix, strconv.FormatUint(org, 10)) + "*"
    iter := ci.RDB.Scan(ctx, 0, match, 100).Iterator()
    var keys []string
    for iter.Next(ctx) {
        keys = append(keys, iter.Val())
    }
    if err := iter.Err(); err != nil {
        log.Printf("cache: scan %s: %v", match, err)
        return
    }
    if len(keys) == 0 {
        return
    }
    if err := ci.RDB.Del(ctx, keys...).Err(); err != nil {
        log.Printf("cache: delete %d keys: %v", len(keys), err)
    }
}
