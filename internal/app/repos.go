package app

import (
	"gorm.io/gorm"

	monitorrepo "github.com/yungbote/vantage-backend/internal/data/repos/monitor"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

type Repos struct {
	Subject monitorrepo.SubjectRepo
	Aspect  monitorrepo.AspectRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Subject: monitorrepo.NewSubjectRepo(db, log),
		Aspect:  monitorrepo.NewAspectRepo(db, log),
	}
}
