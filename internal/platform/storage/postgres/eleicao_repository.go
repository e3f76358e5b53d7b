package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

// EleicaoRepository guarda cada eleição como um documento JSON único com uma
// coluna de versão. A escrita é um compare-and-swap: UPDATE condicionado à
// versão lida; zero linhas afetadas significa que outro chamador venceu.
type EleicaoRepository struct {
	db *gorm.DB
}

func NewEleicaoRepository(db *gorm.DB) *EleicaoRepository {
	return &EleicaoRepository{db: db}
}

type eleicaoRow struct {
	ID           string    `gorm:"column:id;type:char(26);primaryKey"`
	AdminUid     string    `gorm:"column:admin_uid;type:text;not null;index"`
	Status       string    `gorm:"column:status;type:text;not null"`
	Titulo       string    `gorm:"column:titulo;type:text;not null"`
	Documento    []byte    `gorm:"column:documento;type:jsonb;not null"`
	Versao       int64     `gorm:"column:versao;not null;default:1"`
	CriadoEm     time.Time `gorm:"column:criado_em;autoCreateTime"`
	AtualizadoEm time.Time `gorm:"column:atualizado_em;autoUpdateTime"`
}

func (eleicaoRow) TableName() string { return "eleicoes" }

// Modelos expõe os structs persistidos para as migrations.
func Modelos() []any {
	return []any{&eleicaoRow{}, &domain.EventoAuditoria{}}
}

func rowFromDomain(e domain.Eleicao, versao int64) (eleicaoRow, error) {
	doc, err := json.Marshal(e)
	if err != nil {
		return eleicaoRow{}, fmt.Errorf("gorm eleicao: serializar documento: %w", err)
	}
	return eleicaoRow{
		ID:        string(e.ID),
		AdminUid:  e.AdminUid,
		Status:    string(e.Status),
		Titulo:    e.Titulo,
		Documento: doc,
		Versao:    versao,
	}, nil
}

func (r eleicaoRow) toDomain() (domain.Eleicao, error) {
	var e domain.Eleicao
	if err := json.Unmarshal(r.Documento, &e); err != nil {
		return domain.Eleicao{}, fmt.Errorf("gorm eleicao: documento corrompido %s: %w", r.ID, err)
	}
	return e, nil
}

func (r *EleicaoRepository) Criar(ctx context.Context, e domain.Eleicao) error {
	row, err := rowFromDomain(e, 1)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gorm eleicao: inserir: %w", err)
	}
	return nil
}

func (r *EleicaoRepository) Buscar(ctx context.Context, id domain.EleicaoID) (domain.Eleicao, error) {
	row, err := r.buscarRow(ctx, id)
	if err != nil {
		return domain.Eleicao{}, err
	}
	return row.toDomain()
}

func (r *EleicaoRepository) ListarDoAdmin(ctx context.Context, adminUid string) ([]domain.Eleicao, error) {
	var rows []eleicaoRow
	if err := r.db.WithContext(ctx).
		Where("admin_uid = ?", adminUid).
		Order("criado_em ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm eleicao: listar do admin: %w", err)
	}

	result := make([]domain.Eleicao, len(rows))
	for i, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// Transacionar lê o snapshot e a versão, aplica fn e grava condicionado à
// versão. O retry de ErrConflito pertence ao coordenador, não a esta camada.
func (r *EleicaoRepository) Transacionar(ctx context.Context, id domain.EleicaoID, fn func(*domain.Eleicao) error) (domain.Eleicao, error) {
	row, err := r.buscarRow(ctx, id)
	if err != nil {
		return domain.Eleicao{}, err
	}

	eleicao, err := row.toDomain()
	if err != nil {
		return domain.Eleicao{}, err
	}

	if err := fn(&eleicao); err != nil {
		return domain.Eleicao{}, err
	}

	novaRow, err := rowFromDomain(eleicao, row.Versao+1)
	if err != nil {
		return domain.Eleicao{}, err
	}

	res := r.db.WithContext(ctx).Model(&eleicaoRow{}).
		Where("id = ? AND versao = ?", row.ID, row.Versao).
		Updates(map[string]any{
			"documento":     novaRow.Documento,
			"status":        novaRow.Status,
			"titulo":        novaRow.Titulo,
			"versao":        novaRow.Versao,
			"atualizado_em": time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.Eleicao{}, fmt.Errorf("gorm eleicao: gravar snapshot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Outro escritor avançou a versão entre a leitura e a gravação.
		return domain.Eleicao{}, domain.ErrConflito
	}

	return eleicao, nil
}

func (r *EleicaoRepository) buscarRow(ctx context.Context, id domain.EleicaoID) (eleicaoRow, error) {
	var row eleicaoRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return eleicaoRow{}, domain.ErrNaoEncontrado
		}
		return eleicaoRow{}, fmt.Errorf("gorm eleicao: buscar id: %w", err)
	}
	return row, nil
}

var _ domain.EleicaoRepository = (*EleicaoRepository)(nil)
