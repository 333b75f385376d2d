package tiss

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// GuideVariant identifies which kind of TISS guide a bundle carries. The set
// is closed: a bundle whose guide container names anything else is rejected
// with ErrUnknownGuideVariant instead of being guessed at.
type GuideVariant string

const (
	VariantInpatientSummary GuideVariant = "guiaResumoInternacao"
	VariantSPSADT           GuideVariant = "guiaSP-SADT"
	VariantConsultation     GuideVariant = "guiaConsulta"
)

// knownVariants is checked in declaration order; a container never carries
// more than one in practice.
var knownVariants = []GuideVariant{VariantInpatientSummary, VariantSPSADT, VariantConsultation}

// ErrUnknownGuideVariant reports a guide container whose single child key is
// not a recognized guide type.
var ErrUnknownGuideVariant = errors.New("tiss: unknown guide variant")

// ProcedureItem is one billed procedure line inside a guide. Numeric fields
// are always real numbers: missing or unparseable input normalizes to zero.
type ProcedureItem struct {
	Sequence           string
	ExecutionDate      string
	StartTime          string
	EndTime            string
	TableCode          string
	Code               string
	Description        string
	Quantity           int
	AccessRoute        string
	Technique          string
	ReductionSurcharge float64
	UnitValue          float64
	TotalValue         float64
	ProfessionalName   string
	ParticipationGrade string
}

// GuideRecord is one normalized claim guide in document order. It is the unit
// of work the import saga consumes and is never mutated after parsing. Its
// identity is ProviderGuideNumber.
type GuideRecord struct {
	Variant             GuideVariant
	ProviderGuideNumber string
	OperatorGuideNumber string
	InsuranceNumber     string
	BeneficiaryName     string
	BirthDate           string
	Gender              string
	CPF                 string
	Password            string
	PasswordExpiry      *time.Time
	AuthorizationDate   *time.Time
	NewbornCare         string
	TransactionType     string
	LotNumber           string
	AdmissionCharacter  string
	BillingType         string
	BillingStart        *time.Time
	BillingEnd          *time.Time
	AdmissionType       string
	AdmissionRegime     string
	Diagnosis           string
	AccidentIndicator   string
	ClosureReason       string
	Observation         string

	Procedures    []ProcedureItem
	OtherExpenses []Node

	TotalProcedures     float64
	TotalDailyRates     float64
	TotalTaxesRentals   float64
	TotalMaterials      float64
	TotalDrugs          float64
	TotalOPME           float64
	TotalMedicinalGases float64
	TotalOverall        float64

	// Extra holds string-valued guide children the mapping above does not
	// cover. The store sanitizer drops them with a log line, so schema drift
	// between parser and store surfaces without failing imports.
	Extra map[string]string
}

// guideSections are the guide child keys the record mapping consumes; anything
// else string-valued lands in Extra.
var guideSections = map[string]bool{
	"cabecalhoGuia":           true,
	"dadosAutorizacao":        true,
	"dadosBeneficiario":       true,
	"dadosInternacao":         true,
	"dadosSaidaInternacao":    true,
	"procedimentosExecutados": true,
	"outrasDespesas":          true,
	"valorTotal":              true,
	"observacao":              true,
}

// Parser turns a raw TISS XML bundle into an ordered sequence of GuideRecord.
// It is tolerant at every navigation step: a missing section yields an empty
// result with a diagnostic log, never an error. Only malformed XML syntax and
// an unrecognized guide variant are reported as errors.
type Parser struct {
	logger zerolog.Logger
}

func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse extracts every guide from one XML bundle, in document order. The
// result is a pure function of the input.
func (p *Parser) Parse(data []byte) ([]GuideRecord, error) {
	root, err := Decode(data)
	if err != nil {
		return nil, err
	}

	msg := root.Child("mensagemTISS")
	if msg == nil {
		p.logger.Warn().Msg("tiss: mensagemTISS element not found, skipping document")
		return nil, nil
	}

	transactionType := msg.Text("cabecalho", "identificacaoTransacao", "tipoTransacao")
	lotNumber := msg.Text("prestadorParaOperadora", "loteGuias", "numeroLote")

	container := msg.Child("prestadorParaOperadora", "loteGuias", "guiasTISS")
	if container == nil {
		p.logger.Warn().Msg("tiss: guiasTISS container not found, skipping document")
		return nil, nil
	}

	variant, guides, err := p.detectVariant(container)
	if err != nil {
		return nil, err
	}
	if len(guides) == 0 {
		p.logger.Warn().Str("variant", string(variant)).Msg("tiss: no guides in container")
		return nil, nil
	}

	records := make([]GuideRecord, 0, len(guides))
	for _, g := range guides {
		records = append(records, p.parseGuide(g, variant, transactionType, lotNumber))
	}
	return records, nil
}

// detectVariant finds which known guide type the container holds. A lone
// guide element is already normalized into a one-element slice by List.
func (p *Parser) detectVariant(container Node) (GuideVariant, []Node, error) {
	for _, v := range knownVariants {
		if _, ok := container[string(v)]; ok {
			return v, container.List(string(v)), nil
		}
	}
	if keys := container.Keys(); len(keys) > 0 {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownGuideVariant, keys[0])
	}
	return "", nil, nil
}

func (p *Parser) parseGuide(g Node, variant GuideVariant, transactionType, lotNumber string) GuideRecord {
	totals := g.Child("valorTotal")

	rec := GuideRecord{
		Variant:             variant,
		ProviderGuideNumber: g.Text("cabecalhoGuia", "numeroGuiaPrestador"),
		OperatorGuideNumber: g.Text("dadosAutorizacao", "numeroGuiaOperadora"),
		InsuranceNumber:     g.Text("dadosBeneficiario", "numeroCarteira"),
		BeneficiaryName:     g.Text("dadosBeneficiario", "nomeBeneficiario"),
		BirthDate:           g.Text("dadosBeneficiario", "dataNascimento"),
		Gender:              g.Text("dadosBeneficiario", "sexo"),
		CPF:                 g.Text("dadosBeneficiario", "cpf"),
		Password:            g.Text("dadosAutorizacao", "senha"),
		PasswordExpiry:      g.Time("dadosAutorizacao", "dataValidadeSenha"),
		AuthorizationDate:   g.Time("dadosAutorizacao", "dataAutorizacao"),
		NewbornCare:         g.Text("dadosBeneficiario", "atendimentoRN"),
		TransactionType:     transactionType,
		LotNumber:           lotNumber,
		AdmissionCharacter:  g.Text("dadosInternacao", "caraterAtendimento"),
		BillingType:         g.Text("dadosInternacao", "tipoFaturamento"),
		BillingStart:        g.Time("dadosInternacao", "dataInicioFaturamento"),
		BillingEnd:          g.Time("dadosInternacao", "dataFinalFaturamento"),
		AdmissionType:       g.Text("dadosInternacao", "tipoInternacao"),
		AdmissionRegime:     g.Text("dadosInternacao", "regimeInternacao"),
		Diagnosis:           g.Text("dadosSaidaInternacao", "diagnostico"),
		AccidentIndicator:   g.Text("dadosSaidaInternacao", "indicadorAcidente"),
		ClosureReason:       g.Text("dadosSaidaInternacao", "motivoEncerramento"),
		Observation:         g.Text("observacao"),
		OtherExpenses:       g.List("outrasDespesas", "despesa"),
		TotalProcedures:     totals.Float("valorProcedimentos"),
		TotalDailyRates:     totals.Float("valorDiarias"),
		TotalTaxesRentals:   totals.Float("valorTaxasAlugueis"),
		TotalMaterials:      totals.Float("valorMateriais"),
		TotalDrugs:          totals.Float("valorMedicamentos"),
		TotalOPME:           totals.Float("valorOPME"),
		TotalMedicinalGases: totals.Float("valorGasesMedicinais"),
		TotalOverall:        totals.Float("valorTotalGeral"),
	}

	for _, proc := range g.List("procedimentosExecutados", "procedimentoExecutado") {
		rec.Procedures = append(rec.Procedures, p.parseProcedure(proc))
	}

	for _, key := range g.Keys() {
		if guideSections[key] {
			continue
		}
		if s, ok := g[key].(string); ok {
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[key] = s
		}
	}

	return rec
}

func (p *Parser) parseProcedure(n Node) ProcedureItem {
	item := ProcedureItem{
		Sequence:           n.Text("sequencialItem"),
		ExecutionDate:      n.Text("dataExecucao"),
		StartTime:          n.Text("horaInicial"),
		EndTime:            n.Text("horaFinal"),
		TableCode:          n.Text("procedimento", "codigoTabela"),
		Code:               n.Text("procedimento", "codigoProcedimento"),
		Description:        n.Text("procedimento", "descricaoProcedimento"),
		Quantity:           n.Int("quantidadeExecutada"),
		AccessRoute:        n.Text("viaAcesso"),
		Technique:          n.Text("tecnicaUtilizada"),
		ReductionSurcharge: n.Float("reducaoAcrescimo"),
		UnitValue:          n.Float("valorUnitario"),
		TotalValue:         n.Float("valorTotal"),
	}

	// The executing professional comes from the first team entry when a team
	// block is present.
	if team := n.List("identEquipe", "identificacaoEquipe"); len(team) > 0 {
		item.ProfessionalName = team[0].Text("nomeProf")
		item.ParticipationGrade = team[0].Text("grauParticipacao")
	}
	if item.ProfessionalName == "" {
		item.ProfessionalName = "N/A"
	}
	return item
}
