// Package demo holds a small blog schema and a scripted run that exercises
// logger writes, transaction capture and reconstruction end to end.
package demo

import (
	"time"

	"github.com/mickamy/auditlog"
)

type User struct {
	ID       uint   `gorm:"primaryKey"`
	Username string `gorm:"size:150;uniqueIndex;not null"`
	Password string `gorm:"size:128"`
	IsStaff  bool
	JoinedAt time.Time
}

func (User) LogName() string { return "auth.user" }

type Tag struct {
	ID    uint   `gorm:"primaryKey"`
	Label string `gorm:"size:50;uniqueIndex;not null"`
}

func (Tag) LogName() string { return "blog.tag" }

type Post struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"size:200;not null"`
	AuthorID    uint
	Author      *User
	Tags        []Tag     `gorm:"many2many:post_tags"`
	PublishedOn time.Time `gorm:"type:date"`
	Cover       auditlog.FieldFile
	Draft       bool
	CreatedAt   time.Time
}

func (Post) LogName() string { return "blog.post" }

func (Post) VerboseName() string { return "blog post" }

// Models lists the demo models in dependency order.
func Models() []any {
	return []any{&User{}, &Tag{}, &Post{}}
}
