// Pacote migrations centraliza as versões gormigrate aplicadas na inicialização.
package migrations

import (
	"fmt"

	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	postgresstorage "github.com/marcelojr/eleicao-diretoria/internal/platform/storage/postgres"
)

func Run(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("migrations: db nulo")
	}

	// Usamos gormigrate para versionar as migrations sem depender de AutoMigrate direto em produção.
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202508240001_init_schema",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(postgresstorage.Modelos()...)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("eventos_auditoria", "eleicoes")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrations: falha ao aplicar: %w", err)
	}

	return nil
}
