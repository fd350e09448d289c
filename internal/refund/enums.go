package refund

import (
	"fmt"
	"strings"
)

// #region enum-table

// enumTable is a closed value set with a bidirectional code <-> display label
// mapping. Tables are built at package init and panic on duplicate or missing
// entries, so an incomplete table never reaches a running pipeline.
type enumTable[T ~string] struct {
	name    string
	order   []T
	labels  map[T]string
	byLabel map[string]T
	aliases map[string]T
}

type enumEntry[T ~string] struct {
	value T
	label string
}

func newEnumTable[T ~string](name string, entries []enumEntry[T]) *enumTable[T] {
	t := &enumTable[T]{
		name:    name,
		order:   make([]T, 0, len(entries)),
		labels:  make(map[T]string, len(entries)),
		byLabel: make(map[string]T, len(entries)),
		aliases: make(map[string]T),
	}
	for _, e := range entries {
		if e.value == "" || e.label == "" {
			panic(fmt.Sprintf("refund: %s table has an empty entry", name))
		}
		if _, dup := t.labels[e.value]; dup {
			panic(fmt.Sprintf("refund: %s table repeats value %q", name, e.value))
		}
		key := strings.ToLower(e.label)
		if _, dup := t.byLabel[key]; dup {
			panic(fmt.Sprintf("refund: %s table repeats label %q", name, e.label))
		}
		t.order = append(t.order, e.value)
		t.labels[e.value] = e.label
		t.byLabel[key] = e.value
	}
	return t
}

func (t *enumTable[T]) alias(from string, to T) *enumTable[T] {
	if _, ok := t.labels[to]; !ok {
		panic(fmt.Sprintf("refund: %s alias %q targets unknown value %q", t.name, from, to))
	}
	t.aliases[strings.ToUpper(from)] = to
	return t
}

func (t *enumTable[T]) valid(v T) bool {
	_, ok := t.labels[v]
	return ok
}

func (t *enumTable[T]) label(v T) string {
	if l, ok := t.labels[v]; ok {
		return l
	}
	return string(v)
}

// normalize maps codes in any case, aliases and display labels to the
// canonical value. Unknown input is returned unchanged with ok=false.
func (t *enumTable[T]) normalize(s string) (T, bool) {
	trimmed := strings.TrimSpace(s)
	for _, v := range t.order {
		if strings.EqualFold(string(v), trimmed) {
			return v, true
		}
	}
	if v, ok := t.aliases[strings.ToUpper(trimmed)]; ok {
		return v, true
	}
	if v, ok := t.byLabel[strings.ToLower(trimmed)]; ok {
		return v, true
	}
	return T(trimmed), false
}

func (t *enumTable[T]) parse(s string) (T, error) {
	v, ok := t.normalize(s)
	if !ok {
		return "", fmt.Errorf("unknown %s %q", t.name, s)
	}
	return v, nil
}

func (t *enumTable[T]) values() []T {
	out := make([]T, len(t.order))
	copy(out, t.order)
	return out
}

// #endregion enum-table

// #region category

// Category is the problem type selected by the customer.
type Category string

const (
	CategoryRefund       Category = "reembolso"
	CategoryCancellation Category = "cancelamento"
	CategoryBilling      Category = "financeiro"
	CategoryDelivery     Category = "entrega"
	CategoryFraud        Category = "fraude"
	CategorySupport      Category = "suporte"
)

var categories = newEnumTable("category", []enumEntry[Category]{
	{CategoryRefund, "Quero cancelar meu pedido e receber reembolso"},
	{CategoryCancellation, "Cancelamento de pedido"},
	{CategoryBilling, "Fui cobrado incorretamente"},
	{CategoryDelivery, "Meu pedido não chegou ou veio errado"},
	{CategoryFraud, "Suspeita de fraude ou cobrança duplicada"},
	{CategorySupport, "Outro problema"},
})

func (c Category) Valid() bool    { return categories.valid(c) }
func (c Category) Label() string  { return categories.label(c) }
func (c Category) String() string { return string(c) }

func (c *Category) UnmarshalText(b []byte) error {
	*c, _ = categories.normalize(string(b))
	return nil
}

// ParseCategory accepts a code (any case) or its display label.
func ParseCategory(s string) (Category, error) { return categories.parse(s) }

// Categories lists every category in declaration order.
func Categories() []Category { return categories.values() }

// #endregion category

// #region order-status

// OrderStatus is the order's position in the delivery lifecycle.
type OrderStatus string

const (
	StatusAwaitingConfirmation OrderStatus = "AGUARDANDO_CONFIRMACAO"
	StatusPreparing            OrderStatus = "EM_PREPARACAO"
	StatusOutForDelivery       OrderStatus = "SAIU_PARA_ENTREGA"
	StatusDelivered            OrderStatus = "ENTREGUE"
	StatusUnknown              OrderStatus = "DESCONHECIDO"
)

var statuses = newEnumTable("order status", []enumEntry[OrderStatus]{
	{StatusAwaitingConfirmation, "Pedido ainda não foi confirmado pelo restaurante"},
	{StatusPreparing, "Pedido está sendo preparado"},
	{StatusOutForDelivery, "Pedido saiu para entrega"},
	{StatusDelivered, "Pedido foi entregue"},
	{StatusUnknown, "Não sei o status"},
})

func (s OrderStatus) Valid() bool    { return statuses.valid(s) }
func (s OrderStatus) Label() string  { return statuses.label(s) }
func (s OrderStatus) String() string { return string(s) }

func (s *OrderStatus) UnmarshalText(b []byte) error {
	*s, _ = statuses.normalize(string(b))
	return nil
}

func ParseOrderStatus(s string) (OrderStatus, error) { return statuses.parse(s) }

func OrderStatuses() []OrderStatus { return statuses.values() }

// #endregion order-status

// #region reason-code

// ReasonCode is the customer's stated reason for the refund.
type ReasonCode string

const (
	ReasonBuyerRemorse         ReasonCode = "ARREPENDIMENTO_CLIENTE"
	ReasonRestaurantCancelled  ReasonCode = "CANCELAMENTO_RESTAURANTE"
	ReasonRestaurantError      ReasonCode = "ERRO_RESTAURANTE"
	ReasonAppError             ReasonCode = "ERRO_APP"
	ReasonDeliveryDelay        ReasonCode = "ATRASO_ENTREGA"
	ReasonChargedAfterCancel   ReasonCode = "COBRANCA_POS_CANCELAMENTO"
	ReasonDuplicateCharge      ReasonCode = "COBRANCA_DUPLICADA"
	ReasonIncorrectAmount      ReasonCode = "VALOR_INCORRETO"
	ReasonPendingChargeback    ReasonCode = "ESTORNO_PENDENTE"
	ReasonNotReceived          ReasonCode = "NAO_RECEBIDO"
	ReasonIncomplete           ReasonCode = "INCOMPLETO"
	ReasonWrongOrder           ReasonCode = "PEDIDO_ERRADO"
	ReasonCourierError         ReasonCode = "ERRO_ENTREGADOR"
	ReasonUnrecognizedPurchase ReasonCode = "COMPRA_NAO_RECONHECIDA"
	ReasonMultipleCharges      ReasonCode = "MULTIPLAS_COBRANCAS"
	ReasonAccountTakeover      ReasonCode = "CONTA_INVADIDA"
	ReasonOther                ReasonCode = "OUTRO"
)

var reasons = newEnumTable("reason code", []enumEntry[ReasonCode]{
	{ReasonBuyerRemorse, "Mudei de ideia / Desisti do pedido"},
	{ReasonRestaurantCancelled, "Restaurante cancelou ou não tem o item"},
	{ReasonRestaurantError, "Erro no pedido (item errado, falta ingrediente)"},
	{ReasonAppError, "Problema com o aplicativo"},
	{ReasonDeliveryDelay, "Demora excessiva"},
	{ReasonChargedAfterCancel, "Fui cobrado após cancelamento"},
	{ReasonDuplicateCharge, "Cobrança duplicada"},
	{ReasonIncorrectAmount, "Valor cobrado está errado"},
	{ReasonPendingChargeback, "Estorno não caiu na conta"},
	{ReasonNotReceived, "Pedido não chegou (mas consta como entregue)"},
	{ReasonIncomplete, "Pedido chegou incompleto"},
	{ReasonWrongOrder, "Pedido veio errado/trocado"},
	{ReasonCourierError, "Entregador não encontrou o endereço"},
	{ReasonUnrecognizedPurchase, "Não reconheço a compra"},
	{ReasonMultipleCharges, "Múltiplas cobranças suspeitas"},
	{ReasonAccountTakeover, "Conta invadida"},
	{ReasonOther, "Problema não listado acima"},
}).alias("CONTA_COMPROMETIDA", ReasonAccountTakeover)

func (r ReasonCode) Valid() bool    { return reasons.valid(r) }
func (r ReasonCode) Label() string  { return reasons.label(r) }
func (r ReasonCode) String() string { return string(r) }

func (r *ReasonCode) UnmarshalText(b []byte) error {
	*r, _ = reasons.normalize(string(b))
	return nil
}

// Terms renders the code as lowercase words ("CANCELAMENTO_RESTAURANTE" ->
// "cancelamento restaurante") so it can join a free-text retrieval query.
func (r ReasonCode) Terms() string {
	return strings.ToLower(strings.ReplaceAll(string(r), "_", " "))
}

func ParseReasonCode(s string) (ReasonCode, error) { return reasons.parse(s) }

func ReasonCodes() []ReasonCode { return reasons.values() }

// reasonsByCategory mirrors the menu grouping the intake layer offers.
var reasonsByCategory = map[Category][]ReasonCode{
	CategoryRefund:       {ReasonBuyerRemorse, ReasonRestaurantCancelled, ReasonRestaurantError, ReasonAppError, ReasonDeliveryDelay},
	CategoryCancellation: {ReasonBuyerRemorse, ReasonRestaurantCancelled, ReasonAppError},
	CategoryBilling:      {ReasonChargedAfterCancel, ReasonDuplicateCharge, ReasonIncorrectAmount, ReasonPendingChargeback},
	CategoryDelivery:     {ReasonNotReceived, ReasonIncomplete, ReasonWrongOrder, ReasonCourierError},
	CategoryFraud:        {ReasonUnrecognizedPurchase, ReasonMultipleCharges, ReasonAccountTakeover},
	CategorySupport:      {ReasonOther},
}

// ReasonsFor returns the reason codes offered for a category.
func ReasonsFor(c Category) []ReasonCode {
	rs, ok := reasonsByCategory[c]
	if !ok {
		return []ReasonCode{ReasonOther}
	}
	out := make([]ReasonCode, len(rs))
	copy(out, rs)
	return out
}

// #endregion reason-code
