package service

import (
	"fmt"
	"sort"
)

// Operation - операция CategoryService, для которой задается правило кеширования
type Operation string

const (
	OpGetByID      Operation = "get_by_id"
	OpGetByName    Operation = "get_by_name"
	OpListByLevel  Operation = "list_by_level"
	OpListAll      Operation = "list_all"
	OpListChildren Operation = "list_children"

	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Пространства имен кеша
const (
	NamespaceCategory   = "category"   // Одиночные категории (по id и по имени)
	NamespaceCategories = "categories" // Результаты списочных запросов
)

// ReadRule описывает, где кешируется результат чтения.
// Ключ = KeyPrefix + аргумент операции (если он есть).
type ReadRule struct {
	Namespace string
	KeyPrefix string
}

// CachePolicy - явная таблица кеширования:
// чтения -> namespace/ключ, записи -> список сбрасываемых namespace.
// Операция без ReadRule не кешируется.
type CachePolicy struct {
	Reads     map[Operation]ReadRule
	Evictions map[Operation][]string
}

// DefaultCachePolicy возвращает политику, при которой любая запись
// сбрасывает оба namespace целиком. Любая запись может изменить состав
// списков и результат поиска по имени (переименование).
func DefaultCachePolicy() CachePolicy {
	all := []string{NamespaceCategories, NamespaceCategory}

	return CachePolicy{
		Reads: map[Operation]ReadRule{
			OpGetByID:      {Namespace: NamespaceCategory, KeyPrefix: ""},
			OpGetByName:    {Namespace: NamespaceCategory, KeyPrefix: "name:"},
			OpListByLevel:  {Namespace: NamespaceCategories, KeyPrefix: "level:"},
			OpListAll:      {Namespace: NamespaceCategories, KeyPrefix: "all"},
			OpListChildren: {Namespace: NamespaceCategories, KeyPrefix: "children:"},
		},
		Evictions: map[Operation][]string{
			OpCreate: all,
			OpUpdate: all,
			OpDelete: all,
		},
	}
}

// Key возвращает namespace и ключ для чтения. ok == false - операция не кешируется.
// arg == nil для операций без аргумента (OpListAll).
func (p CachePolicy) Key(op Operation, arg interface{}) (namespace, key string, ok bool) {
	rule, ok := p.Reads[op]
	if !ok {
		return "", "", false
	}
	if arg == nil {
		return rule.Namespace, rule.KeyPrefix, true
	}
	return rule.Namespace, rule.KeyPrefix + fmt.Sprint(arg), true
}

// EvictionsFor возвращает namespace, которые нужно сбросить после записи
func (p CachePolicy) EvictionsFor(op Operation) []string {
	return p.Evictions[op]
}

// Namespaces возвращает все namespace, упомянутые в политике, без повторов и по алфавиту
func (p CachePolicy) Namespaces() []string {
	seen := make(map[string]bool)
	var namespaces []string

	add := func(ns string) {
		if !seen[ns] {
			seen[ns] = true
			namespaces = append(namespaces, ns)
		}
	}

	for _, rule := range p.Reads {
		add(rule.Namespace)
	}
	for _, list := range p.Evictions {
		for _, ns := range list {
			add(ns)
		}
	}

	sort.Strings(namespaces)
	return namespaces
}
