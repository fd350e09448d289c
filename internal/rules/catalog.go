package rules

import "github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"

// #region catalog
// Catalog returns the sixteen production rules in tier and declaration order.
// Rules reference the knowledge base policy they apply; fraud rules and the
// high-value review never require one so that a knowledge base gap cannot
// weaken them.
func Catalog() []Definition {
	high, medium, low := refund.ConfidenceHigh, refund.ConfidenceMedium, refund.ConfidenceLow
	return []Definition{
		// fraud
		{
			ID: "FRAUDE_F1", Tier: TierFraud,
			Description: "Compra não reconhecida vai para a equipe antifraude",
			Expression:  `category == "fraude" && reason == "COMPRA_NAO_RECONHECIDA"`,
			Branches: map[string]Branch{BranchMatch: {"FRAUDE_F1", ManualReview, high, 0.95,
				"Compra não reconhecida detectada. Encaminhando para equipe antifraude com bloqueio preventivo."}},
		},
		{
			ID: "FRAUDE_F2", Tier: TierFraud,
			Description: "Conta invadida aciona bloqueio e equipe de segurança",
			Expression:  `category == "fraude" && reason == "CONTA_INVADIDA"`,
			Branches: map[string]Branch{BranchMatch: {"FRAUDE_F2", ManualReview, high, 0.98,
				"Conta possivelmente comprometida. Bloqueio preventivo ativado e encaminhado para equipe de segurança."}},
		},
		{
			ID: "FRAUDE_F3", Tier: TierFraud,
			Description: "Múltiplas cobranças suspeitas exigem análise financeira",
			Expression:  `reason == "MULTIPLAS_COBRANCAS"`,
			Branches: map[string]Branch{BranchMatch: {"FRAUDE_F3", ManualReview, medium, 0.75,
				"Múltiplas cobranças detectadas. Requer análise financeira detalhada."}},
		},

		// cancellation
		{
			ID: "CANCELAMENTO_C1", Tier: TierCancellation,
			Description:    "Restaurante cancelou o pedido",
			Expression:     `reason == "CANCELAMENTO_RESTAURANTE"`,
			RequiresPolicy: "POL-2.1",
			Branches: map[string]Branch{BranchMatch: {"CANCELAMENTO_C1", Approve, high, 1.0,
				"Cancelamento realizado pelo restaurante. Reembolso total automático conforme Política 2.1."}},
		},
		{
			ID: "CANCELAMENTO_C2", Tier: TierCancellation,
			Description:    "Erro do aplicativo comprovado",
			Expression:     `reason == "ERRO_APP"`,
			RequiresPolicy: "POL-2.1",
			Branches: map[string]Branch{BranchMatch: {"CANCELAMENTO_C2", Approve, high, 1.0,
				"Erro do aplicativo confirmado. Reembolso total automático conforme Política 2.1."}},
		},
		{
			ID: "CANCELAMENTO_C3", Tier: TierCancellation,
			Description:    "Cancelamento antes da confirmação do restaurante",
			Expression:     `status == "AGUARDANDO_CONFIRMACAO" && reason in ["ARREPENDIMENTO_CLIENTE", "CANCELAMENTO_RESTAURANTE", "ERRO_APP"]`,
			RequiresPolicy: "POL-1.1",
			Branches: map[string]Branch{BranchMatch: {"CANCELAMENTO_C3", Approve, high, 1.0,
				"Pedido ainda não confirmado pelo restaurante. Cancelamento permitido com reembolso total."}},
		},

		// restaurant and courier errors
		{
			ID: "ERRO_E1", Tier: TierError,
			Description:    "Erro do restaurante no preparo",
			Expression:     `reason == "ERRO_RESTAURANTE"`,
			RequiresPolicy: "POL-2.1",
			Branches: map[string]Branch{BranchMatch: {"ERRO_E1", Approve, high, 0.95,
				"Erro do restaurante confirmado. Reembolso total aprovado conforme Política 2.1."}},
		},
		{
			ID: "ERRO_E2", Tier: TierError,
			Description:    "Erro do entregador",
			Expression:     `reason == "ERRO_ENTREGADOR"`,
			RequiresPolicy: "POL-2.2",
			Branches: map[string]Branch{BranchMatch: {"ERRO_E2", Approve, high, 0.90,
				"Erro do entregador confirmado. Reembolso aprovado conforme Política 2.2."}},
		},

		// delivery failures
		{
			ID: "ENTREGA_D1", Tier: TierDelivery,
			Description:    "Pedido não recebido mas marcado como entregue",
			Expression:     `reason != "NAO_RECEBIDO" ? "" : (order_value > high_value_limit ? "high_value" : "match")`,
			RequiresPolicy: "POL-3.1",
			Branches: map[string]Branch{
				"high_value": {"ENTREGA_D1_ALTO_VALOR", ManualReview, medium, 0.70,
					"Pedido não recebido com valor alto (R${value}). Requer validação manual."},
				BranchMatch: {"ENTREGA_D1", Approve, medium, 0.80,
					"Pedido não recebido. Aprovado para reembolso após validação do status."},
			},
		},
		{
			ID: "ENTREGA_D2", Tier: TierDelivery,
			Description:    "Pedido chegou incompleto",
			Expression:     `reason == "INCOMPLETO"`,
			RequiresPolicy: "POL-3.2",
			Branches: map[string]Branch{BranchMatch: {"ENTREGA_D2", Approve, medium, 0.85,
				"Pedido incompleto. Reembolso parcial aprovado para itens faltantes."}},
		},

		// billing
		{
			ID: "FINANCEIRO_FIN1", Tier: TierBilling,
			Description:    "Cobrança duplicada",
			Expression:     `reason == "COBRANCA_DUPLICADA"`,
			RequiresPolicy: "POL-5.1",
			Branches: map[string]Branch{BranchMatch: {"FINANCEIRO_FIN1", Approve, high, 0.95,
				"Cobrança duplicada confirmada. Estorno automático da segunda cobrança."}},
		},
		{
			ID: "FINANCEIRO_FIN2", Tier: TierBilling,
			Description:    "Cobrança após cancelamento",
			Expression:     `reason == "COBRANCA_POS_CANCELAMENTO"`,
			RequiresPolicy: "POL-5.2",
			Branches: map[string]Branch{BranchMatch: {"FINANCEIRO_FIN2", Approve, high, 0.90,
				"Cobrança indevida após cancelamento. Estorno aprovado."}},
		},

		// delay
		{
			ID: "ATRASO_A1", Tier: TierDelay,
			Description: "Atraso na entrega graduado pelo tempo de espera",
			Expression: `reason != "ATRASO_ENTREGA" ? "" :
				(elapsed_minutes >= critical_delay_minutes ? "critical" :
				(elapsed_minutes >= significant_delay_minutes ? "significant" : "moderate"))`,
			RequiresPolicy: "POL-6.1",
			Branches: map[string]Branch{
				"critical": {"ATRASO_A1_CRITICO", Approve, high, 0.95,
					"Atraso crítico de {minutes} minutos. Reembolso total aprovado."},
				"significant": {"ATRASO_A1_SIGNIFICATIVO", Approve, medium, 0.80,
					"Atraso significativo de {minutes} minutos. Compensação aprovada."},
				"moderate": {"ATRASO_A1_MODERADO", Escalate, low, 0.50,
					"Atraso reportado de {minutes} minutos. Requer análise do tempo estimado vs real."},
			},
		},

		// buyer's remorse
		{
			ID: "ARREPENDIMENTO_R1", Tier: TierRemorse,
			Description:    "Arrependimento antes da saída para entrega",
			Expression:     `reason == "ARREPENDIMENTO_CLIENTE" && status in ["AGUARDANDO_CONFIRMACAO", "EM_PREPARACAO"]`,
			RequiresPolicy: "POL-4.1",
			Branches: map[string]Branch{BranchMatch: {"ARREPENDIMENTO_R1", Approve, high, 0.90,
				"Cancelamento por arrependimento antes da saída para entrega. Reembolso aprovado."}},
		},
		{
			ID: "ARREPENDIMENTO_R2", Tier: TierRemorse,
			Description:    "Arrependimento após saída para entrega",
			Expression:     `reason == "ARREPENDIMENTO_CLIENTE" && status in ["SAIU_PARA_ENTREGA", "ENTREGUE"]`,
			RequiresPolicy: "POL-4.1",
			Branches: map[string]Branch{BranchMatch: {"ARREPENDIMENTO_R2", Reject, high, 0.95,
				"Desistência após saída para entrega não é elegível para reembolso conforme Política 4.1."}},
		},

		// high value
		{
			ID: "VALOR_V1", Tier: TierHighValue,
			Description: "Pedidos de alto valor exigem análise manual",
			Expression:  `order_value > high_value_limit && category != "fraude"`,
			Branches: map[string]Branch{BranchMatch: {"VALOR_V1", ManualReview, medium, 0.60,
				"Pedido de alto valor (R${value}) requer análise manual adicional."}},
		},
	}
}

// #endregion catalog
