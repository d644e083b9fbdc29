package inmemdb

import (
	"sync"

	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
	"github.com/trezcool/alama/core/user"
)

type (
	// DB is an in-memory store, safe for concurrent use. Used in tests and local runs.
	DB struct {
		user         *userTable
		classSubject *classSubjectTable
		record       *recordTable
		setting      *settingTable
	}

	userTable struct {
		t     map[string]*user.User
		mutex sync.RWMutex
	}

	classSubjectTable struct {
		t     map[string]*course.ClassSubject
		mutex sync.RWMutex
	}

	recordTable struct {
		t     map[string]*score.Record
		mutex sync.RWMutex
	}

	settingTable struct {
		s     *setting.Setting
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{t: make(map[string]*user.User)},
		classSubject: &classSubjectTable{t: make(map[string]*course.ClassSubject)},
		record:       &recordTable{t: make(map[string]*score.Record)},
		setting:      &settingTable{},
	}
}
