package tiss

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testParser() *Parser {
	return NewParser(zerolog.Nop())
}

func bundle(guides ...string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ans:mensagemTISS xmlns:ans="http://www.ans.gov.br/padroes/tiss/schemas">
  <ans:cabecalho>
    <ans:identificacaoTransacao>
      <ans:tipoTransacao>ENVIO_LOTE_GUIAS</ans:tipoTransacao>
    </ans:identificacaoTransacao>
  </ans:cabecalho>
  <ans:prestadorParaOperadora>
    <ans:loteGuias>
      <ans:numeroLote>42</ans:numeroLote>
      <ans:guiasTISS>%s</ans:guiasTISS>
    </ans:loteGuias>
  </ans:prestadorParaOperadora>
</ans:mensagemTISS>`, strings.Join(guides, "")))
}

func inpatientGuide(number string, extra string) string {
	return fmt.Sprintf(`<ans:guiaResumoInternacao>
  <ans:cabecalhoGuia><ans:numeroGuiaPrestador>%s</ans:numeroGuiaPrestador></ans:cabecalhoGuia>
  <ans:dadosAutorizacao>
    <ans:numeroGuiaOperadora>OP-1</ans:numeroGuiaOperadora>
    <ans:senha>SENHA123</ans:senha>
    <ans:dataAutorizacao>2025-02-10</ans:dataAutorizacao>
  </ans:dadosAutorizacao>
  <ans:dadosBeneficiario>
    <ans:numeroCarteira>77001</ans:numeroCarteira>
    <ans:nomeBeneficiario>MARIA DA SILVA</ans:nomeBeneficiario>
    <ans:dataNascimento>1980-05-20</ans:dataNascimento>
    <ans:sexo>F</ans:sexo>
  </ans:dadosBeneficiario>
  <ans:dadosInternacao>
    <ans:caraterAtendimento>1</ans:caraterAtendimento>
    <ans:tipoInternacao>1</ans:tipoInternacao>
    <ans:regimeInternacao>1</ans:regimeInternacao>
    <ans:dataInicioFaturamento>2025-02-11</ans:dataInicioFaturamento>
    <ans:dataFinalFaturamento>2025-02-15</ans:dataFinalFaturamento>
  </ans:dadosInternacao>
  <ans:dadosSaidaInternacao>
    <ans:diagnostico>A41</ans:diagnostico>
    <ans:motivoEncerramento>11</ans:motivoEncerramento>
  </ans:dadosSaidaInternacao>
  <ans:procedimentosExecutados>
    <ans:procedimentoExecutado>
      <ans:sequencialItem>1</ans:sequencialItem>
      <ans:dataExecucao>2025-02-12</ans:dataExecucao>
      <ans:procedimento>
        <ans:codigoTabela>22</ans:codigoTabela>
        <ans:codigoProcedimento>31005497</ans:codigoProcedimento>
        <ans:descricaoProcedimento>COLECISTECTOMIA</ans:descricaoProcedimento>
      </ans:procedimento>
      <ans:quantidadeExecutada>1</ans:quantidadeExecutada>
      <ans:valorUnitario>1200.00</ans:valorUnitario>
      <ans:valorTotal>1200.00</ans:valorTotal>
      <ans:identEquipe>
        <ans:identificacaoEquipe>
          <ans:grauParticipacao>00</ans:grauParticipacao>
          <ans:nomeProf>DR JOAO</ans:nomeProf>
        </ans:identificacaoEquipe>
        <ans:identificacaoEquipe>
          <ans:grauParticipacao>01</ans:grauParticipacao>
          <ans:nomeProf>DRA ANA</ans:nomeProf>
        </ans:identificacaoEquipe>
      </ans:identEquipe>
    </ans:procedimentoExecutado>
  </ans:procedimentosExecutados>
  <ans:valorTotal>
    <ans:valorProcedimentos>1200.00</ans:valorProcedimentos>
    <ans:valorDiarias>800.00</ans:valorDiarias>
    <ans:valorTotalGeral>2000.00</ans:valorTotalGeral>
  </ans:valorTotal>%s
</ans:guiaResumoInternacao>`, number, extra)
}

func TestParseSingleGuide(t *testing.T) {
	records, err := testParser().Parse(bundle(inpatientGuide("12345", "")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Variant != VariantInpatientSummary {
		t.Fatalf("variant: %q", rec.Variant)
	}
	if rec.ProviderGuideNumber != "12345" {
		t.Fatalf("provider guide number: %q", rec.ProviderGuideNumber)
	}
	if rec.OperatorGuideNumber != "OP-1" || rec.Password != "SENHA123" {
		t.Fatalf("authorization data: %q %q", rec.OperatorGuideNumber, rec.Password)
	}
	if rec.InsuranceNumber != "77001" || rec.BeneficiaryName != "MARIA DA SILVA" || rec.Gender != "F" {
		t.Fatalf("beneficiary data: %+v", rec)
	}
	if rec.TransactionType != "ENVIO_LOTE_GUIAS" || rec.LotNumber != "42" {
		t.Fatalf("envelope data: %q %q", rec.TransactionType, rec.LotNumber)
	}
	if rec.AuthorizationDate == nil || rec.BillingStart == nil || rec.BillingEnd == nil {
		t.Fatal("expected parsed dates")
	}
	if rec.Diagnosis != "A41" || rec.ClosureReason != "11" {
		t.Fatalf("discharge data: %q %q", rec.Diagnosis, rec.ClosureReason)
	}
	if rec.TotalProcedures != 1200 || rec.TotalDailyRates != 800 || rec.TotalOverall != 2000 {
		t.Fatalf("totals: %v %v %v", rec.TotalProcedures, rec.TotalDailyRates, rec.TotalOverall)
	}
	if len(rec.Procedures) != 1 {
		t.Fatalf("expected 1 procedure, got %d", len(rec.Procedures))
	}
	proc := rec.Procedures[0]
	if proc.Code != "31005497" || proc.Quantity != 1 || proc.UnitValue != 1200 {
		t.Fatalf("procedure: %+v", proc)
	}
	if proc.ProfessionalName != "DR JOAO" || proc.ParticipationGrade != "00" {
		t.Fatalf("professional from first team entry: %q %q", proc.ProfessionalName, proc.ParticipationGrade)
	}
}

func TestParseSiblingGuidesInOrder(t *testing.T) {
	records, err := testParser().Parse(bundle(
		inpatientGuide("1", ""), inpatientGuide("2", ""), inpatientGuide("3", ""),
	))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"1", "2", "3"} {
		if records[i].ProviderGuideNumber != want {
			t.Fatalf("record %d: got %q, want %q", i, records[i].ProviderGuideNumber, want)
		}
	}
}

func TestParseMissingSectionsTolerated(t *testing.T) {
	records, err := testParser().Parse(bundle(`<ans:guiaResumoInternacao>
  <ans:cabecalhoGuia><ans:numeroGuiaPrestador>99</ans:numeroGuiaPrestador></ans:cabecalhoGuia>
</ans:guiaResumoInternacao>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.InsuranceNumber != "" || rec.Diagnosis != "" {
		t.Fatal("missing sections should yield empty strings")
	}
	if rec.AuthorizationDate != nil || rec.BillingStart != nil {
		t.Fatal("missing dates should stay nil")
	}
	if rec.TotalOverall != 0 {
		t.Fatalf("missing totals should be zero, got %v", rec.TotalOverall)
	}
	if len(rec.Procedures) != 0 {
		t.Fatalf("expected no procedures, got %d", len(rec.Procedures))
	}
}

func TestParseNonNumericQuantity(t *testing.T) {
	records, err := testParser().Parse(bundle(`<ans:guiaResumoInternacao>
  <ans:cabecalhoGuia><ans:numeroGuiaPrestador>7</ans:numeroGuiaPrestador></ans:cabecalhoGuia>
  <ans:procedimentosExecutados>
    <ans:procedimentoExecutado>
      <ans:procedimento><ans:codigoProcedimento>101</ans:codigoProcedimento></ans:procedimento>
      <ans:quantidadeExecutada>abc</ans:quantidadeExecutada>
      <ans:valorTotal>x</ans:valorTotal>
    </ans:procedimentoExecutado>
  </ans:procedimentosExecutados>
</ans:guiaResumoInternacao>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	proc := records[0].Procedures[0]
	if proc.Quantity != 0 || proc.TotalValue != 0 {
		t.Fatalf("non-numeric values must normalize to zero: %+v", proc)
	}
	if proc.ProfessionalName != "N/A" {
		t.Fatalf("expected N/A professional fallback, got %q", proc.ProfessionalName)
	}
}

func TestParseMalformedXML(t *testing.T) {
	if _, err := testParser().Parse([]byte(`<ans:mensagemTISS><oops`)); err == nil {
		t.Fatal("expected error for malformed xml")
	}
}

func TestParseUnknownVariant(t *testing.T) {
	_, err := testParser().Parse(bundle(`<ans:guiaHonorarios><ans:x>1</ans:x></ans:guiaHonorarios>`))
	if !errors.Is(err, ErrUnknownGuideVariant) {
		t.Fatalf("expected ErrUnknownGuideVariant, got %v", err)
	}
}

func TestParseMissingEnvelope(t *testing.T) {
	records, err := testParser().Parse([]byte(`<outroDocumento><x>1</x></outroDocumento>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records for foreign document, got %d", len(records))
	}
}

func TestParseCollectsExtraFields(t *testing.T) {
	records, err := testParser().Parse(bundle(inpatientGuide("5", `<ans:situacaoInternacao>ALTA</ans:situacaoInternacao>`)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := records[0].Extra["situacaoInternacao"]; got != "ALTA" {
		t.Fatalf("expected extra field captured, got %q", got)
	}
}

func TestParseOtherExpenses(t *testing.T) {
	records, err := testParser().Parse(bundle(inpatientGuide("6", `<ans:outrasDespesas>
  <ans:despesa><ans:codigoDespesa>02</ans:codigoDespesa></ans:despesa>
  <ans:despesa><ans:codigoDespesa>03</ans:codigoDespesa></ans:despesa>
</ans:outrasDespesas>`)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records[0].OtherExpenses) != 2 {
		t.Fatalf("expected 2 other expenses, got %d", len(records[0].OtherExpenses))
	}
}
