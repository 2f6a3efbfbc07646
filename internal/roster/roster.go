package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName is "First Last" with a username fallback.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	TeacherID string `json:"teacher_id"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// GetUser returns (User, false, nil) when the user does not exist;
// absence is not an error.
func (s *Store) GetUser(ctx context.Context, id string) (User, bool, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, first_name, last_name FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Role, &u.FirstName, &u.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *Store) ListUsers(ctx context.Context, role string) ([]User, error) {
	var rows *sql.Rows
	var err error
	if role == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, username, role, first_name, last_name FROM users ORDER BY username`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, username, role, first_name, last_name FROM users WHERE role=$1 ORDER BY username`, role)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.FirstName, &u.LastName); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type UpsertRow struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password,omitempty"` // plaintext, hashed on write
}

// BulkUpsert inserts or updates users in one transaction.
// New users require a password; existing users keep their hash unless a
// replacement password is supplied.
func (s *Store) BulkUpsert(ctx context.Context, rows []UpsertRow) (inserted, updated int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := time.Now().Unix()
	for _, r := range rows {
		if r.Role == "" {
			r.Role = "student"
		}
		if r.Role != "student" && r.Role != "teacher" && r.Role != "admin" {
			return inserted, updated, errors.New("invalid role: " + r.Role)
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		var phash string
		if r.Password != "" {
			b, e := bcrypt.GenerateFromPassword([]byte(r.Password), 12)
			if e != nil {
				return inserted, updated, e
			}
			phash = string(b)
		}

		var exists bool
		if err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=$1 OR username=$2`, r.ID, r.Username).Scan(new(int)); err == nil {
			exists = true
		} else if !errors.Is(err, sql.ErrNoRows) {
			return inserted, updated, err
		}
		err = nil

		if exists {
			if phash != "" {
				_, err = tx.ExecContext(ctx,
					`UPDATE users SET username=$1, role=$2, first_name=$3, last_name=$4, password_hash=$5 WHERE id=$6 OR username=$1`,
					r.Username, r.Role, r.FirstName, r.LastName, phash, r.ID)
			} else {
				_, err = tx.ExecContext(ctx,
					`UPDATE users SET username=$1, role=$2, first_name=$3, last_name=$4 WHERE id=$5 OR username=$1`,
					r.Username, r.Role, r.FirstName, r.LastName, r.ID)
			}
			if err != nil {
				return inserted, updated, err
			}
			updated++
		} else {
			if phash == "" {
				return inserted, updated, errors.New("password required for new user: " + r.Username)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, username, password_hash, role, first_name, last_name, created_at)
				 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				r.ID, r.Username, phash, r.Role, r.FirstName, r.LastName, now)
			if err != nil {
				return inserted, updated, err
			}
			inserted++
		}
	}
	return
}

// CreateGroup allocates a join code and persists the group.
func (s *Store) CreateGroup(ctx context.Context, name, teacherID string) (Group, error) {
	g := Group{ID: uuid.NewString(), Name: name, TeacherID: teacherID}
	for i := 0; i < 5; i++ {
		g.Code = fmt.Sprintf("%06d", rand.Intn(1000000))
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO groups (id, name, code, teacher_id, created_at) VALUES ($1,$2,$3,$4,$5)`,
			g.ID, g.Name, g.Code, g.TeacherID, time.Now().Unix())
		if err == nil {
			return g, nil
		}
		if !isUniqueViolation(err) {
			return Group{}, err
		}
	}
	return Group{}, errors.New("could not allocate a unique group code")
}

func (s *Store) GetGroup(ctx context.Context, id string) (Group, bool, error) {
	var g Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, code, teacher_id FROM groups WHERE id=$1`, id).
		Scan(&g.ID, &g.Name, &g.Code, &g.TeacherID)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, false, nil
	}
	if err != nil {
		return Group{}, false, err
	}
	return g, true, nil
}

func (s *Store) AddMember(ctx context.Context, groupID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, created_at) VALUES ($1,$2,$3)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, time.Now().Unix())
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected() // already-a-member is not an error
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	return err
}

func (s *Store) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID).Scan(new(int))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListMembers(ctx context.Context, groupID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.role, u.first_name, u.last_name
		 FROM group_members m JOIN users u ON u.id = m.user_id
		 WHERE m.group_id=$1 ORDER BY u.username`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.FirstName, &u.LastName); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
