package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gramkeeper/internal/logging"
	"gramkeeper/internal/scraper"
)

// upsertPostSQL updates a re-curated post in place. The user-interaction
// fields (user_comment, seen) are deliberately absent from the UPDATE
// set; they survive re-curation.
const upsertPostSQL = `
	INSERT INTO posts (shortcode, run_id, profile_handle, post_url, posted_at,
		comment_count, like_count, score, is_curated, media_type, caption,
		accessibility_caption, has_liked, username, media_urls,
		suggested_comments, ai_score, seen)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	ON CONFLICT(shortcode) DO UPDATE SET
		run_id = excluded.run_id,
		comment_count = excluded.comment_count,
		like_count = excluded.like_count,
		score = excluded.score,
		is_curated = excluded.is_curated,
		caption = excluded.caption,
		accessibility_caption = excluded.accessibility_caption,
		has_liked = excluded.has_liked,
		username = excluded.username,
		media_urls = excluded.media_urls,
		suggested_comments = excluded.suggested_comments,
		ai_score = excluded.ai_score`

// UpsertCuratedPosts persists the selected candidates of one run,
// idempotent by shortcode.
func (s *Store) UpsertCuratedPosts(runID int64, cands []scraper.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertPostSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cands {
		var likeCount any
		if c.LikeCount != nil {
			likeCount = *c.LikeCount
		}
		var aiScore any
		if c.AIScore != nil {
			aiScore = *c.AIScore
		}
		if _, err := stmt.Exec(
			c.Shortcode, runID, c.ProfileHandle, c.PostURL(), c.PostedAt.UnixMilli(),
			c.CommentCount, likeCount, c.Score, int(c.MediaType), c.Caption,
			c.AccessibilityCaption, boolInt(c.HasLiked), c.Username,
			marshalStrings(c.MediaURLs), marshalStrings(c.SuggestedComments), aiScore,
		); err != nil {
			return fmt.Errorf("upsert post %s: %w", c.Shortcode, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logging.Store("Upserted %d curated posts for run %d", len(cands), runID)
	return nil
}

const postColumns = `shortcode, run_id, profile_handle, post_url, posted_at,
	comment_count, like_count, score, is_curated, media_type, caption,
	accessibility_caption, has_liked, username, user_comment,
	suggested_comments, media_urls, seen, ai_score`

// PostByShortcode returns one curated post, or ErrNotFound.
func (s *Store) PostByShortcode(shortcode string) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+postColumns+" FROM posts WHERE shortcode = ?", shortcode)
	p, err := scanPost(row.Scan, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// CuratedPostsForRun returns a run's curated posts, highest score first.
func (s *Store) CuratedPostsForRun(runID int64) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT "+postColumns+" FROM posts WHERE run_id = ? AND is_curated = 1 ORDER BY score DESC",
		runID)
	if err != nil {
		return nil, fmt.Errorf("posts for run %d: %w", runID, err)
	}
	defer rows.Close()
	return collectPosts(rows, false)
}

// AllCuratedPosts returns every curated post joined with its run's date
// and status, newest run first.
func (s *Store) AllCuratedPosts() ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT ` + postColumns + `, r.started_at, r.status
		FROM posts p JOIN runs r ON p.run_id = r.id
		WHERE p.is_curated = 1
		ORDER BY p.run_id DESC, p.posted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("all curated posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows, true)
}

// UpdatePostComment records the comment the user published on a post.
func (s *Store) UpdatePostComment(shortcode, comment string) error {
	return s.updatePostField("user_comment", shortcode, comment)
}

// UpdatePostSeen toggles a post's seen flag.
func (s *Store) UpdatePostSeen(shortcode string, seen bool) error {
	return s.updatePostField("seen", shortcode, boolInt(seen))
}

// UpdatePostLikeStatus records that the acting account has (un)liked a
// post.
func (s *Store) UpdatePostLikeStatus(shortcode string, hasLiked bool) error {
	return s.updatePostField("has_liked", shortcode, boolInt(hasLiked))
}

func (s *Store) updatePostField(column, shortcode string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		fmt.Sprintf("UPDATE posts SET %s = ? WHERE shortcode = ?", column),
		value, shortcode)
	if err != nil {
		return fmt.Errorf("update post %s: %w", shortcode, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func collectPosts(rows *sql.Rows, withRun bool) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows.Scan, withRun)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func scanPost(scan func(...any) error, withRun bool) (*Post, error) {
	var p Post
	var postedAt int64
	var likeCount, aiScore sql.NullInt64
	var isCurated, hasLiked, seen int
	var mediaType int
	var caption, accCaption, username, userComment, suggested, mediaURLs sql.NullString

	dest := []any{
		&p.Shortcode, &p.RunID, &p.ProfileHandle, &p.PostURL, &postedAt,
		&p.CommentCount, &likeCount, &p.Score, &isCurated, &mediaType,
		&caption, &accCaption, &hasLiked, &username, &userComment,
		&suggested, &mediaURLs, &seen, &aiScore,
	}
	var runStarted sql.NullInt64
	var runStatus sql.NullString
	if withRun {
		dest = append(dest, &runStarted, &runStatus)
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}

	p.PostedAt = time.UnixMilli(postedAt)
	if likeCount.Valid {
		n := int(likeCount.Int64)
		p.LikeCount = &n
	}
	if aiScore.Valid {
		n := int(aiScore.Int64)
		p.AIScore = &n
	}
	p.IsCurated = isCurated != 0
	p.HasLiked = hasLiked != 0
	p.Seen = seen != 0
	p.MediaType = scraper.MediaType(mediaType)
	p.Caption = caption.String
	p.AccessibilityCaption = accCaption.String
	p.Username = username.String
	p.UserComment = userComment.String
	p.SuggestedComments = unmarshalStrings(suggested.String)
	p.MediaURLs = unmarshalStrings(mediaURLs.String)
	if withRun {
		if runStarted.Valid {
			t := time.UnixMilli(runStarted.Int64)
			p.RunDate = &t
		}
		p.RunStatus = runStatus.String
	}
	return &p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalStrings(values []string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}
