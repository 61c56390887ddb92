package main

import (
	"log"
	"os"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/assets"
	"github.com/trezcool/registrar/core"
	emailsvc "github.com/trezcool/registrar/services/email"
	logsvc "github.com/trezcool/registrar/services/logger"
	"github.com/trezcool/registrar/storage/database"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("setting up database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	if err = core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, false); err != nil {
		logger.Fatal("parsing email templates", err)
	}
	mailSvc := emailsvc.NewConsoleService(conf, os.Stdout, logger)

	// start CLI
	cli := &commandLine{
		db:  db,
		app: container.New(conf, container.PostgresRepositories(db), mailSvc),
	}
	err = newRootCommand(cli).Execute()

	_ = db.Close()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
