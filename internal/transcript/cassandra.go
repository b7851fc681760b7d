package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"gwi.com/video-qa/internal/apperr"
)

// CassandraConfig holds connection settings for the caption store.
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// CassandraSource reads SRT captions that the crawler stored per video.
type CassandraSource struct {
	session *gocql.Session
}

// ConnectCassandra establishes a connection to Cassandra.
func ConnectCassandra(cfg CassandraConfig) (*CassandraSource, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = timeout
	cluster.ConnectTimeout = timeout

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	return &CassandraSource{session: session}, nil
}

// Close closes the Cassandra session.
func (c *CassandraSource) Close() {
	if c.session != nil {
		c.session.Close()
	}
}

// FetchTranscript returns the video title and its parsed caption segments.
func (c *CassandraSource) FetchTranscript(ctx context.Context, videoID string) (string, []Segment, error) {
	query := `
		SELECT title, transcript_srt
		FROM video_transcripts
		WHERE video_id = ?
	`

	var title, srt string
	err := c.session.Query(query, videoID).WithContext(ctx).Scan(&title, &srt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", nil, apperr.Newf(apperr.CodeNotFound, "no transcript stored for video %s", videoID)
		}
		return "", nil, fmt.Errorf("error fetching transcript: %w", err)
	}

	segments, err := ParseSRT(srt)
	if err != nil {
		return "", nil, apperr.Wrapf(err, apperr.CodeInput, "stored transcript for video %s is not valid SRT", videoID)
	}
	return title, segments, nil
}
