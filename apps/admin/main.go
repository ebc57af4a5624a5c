package main

import (
	"log"
	"os"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/storage/database"
	sqlxrepos "github.com/askuphq/askup/storage/database/sqlx"
)

var logger *log.Logger // todo: logger service

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// start CLI
	cli := commandLine{
		db:       db,
		usrRepo:  sqlxrepos.NewUserRepository(db, conf),
		qsetRepo: sqlxrepos.NewQsetRepository(db, conf),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
