// Пакет rbac — определение роли пользователя по группам и ролям IdP.
// Роли упорядочены по привилегиям: readonly < records-manager < admin.
// Более высокая роль включает права всех нижестоящих.
package rbac

// Роли в порядке возрастания привилегий.
const (
	// RoleReadonly — чтение политик, статусов, удержаний и журнала
	RoleReadonly = "readonly"
	// RoleManager — управление политиками, удержаниями и disposition
	RoleManager = "records-manager"
	// RoleAdmin — подтверждение уничтожения, очистка статусов, запуск сканирования
	RoleAdmin = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleReadonly: 1,
	RoleManager:  2,
	RoleAdmin:    3,
}

// GroupMapping — группы IdP, дающие каждую из ролей.
type GroupMapping struct {
	Admin    []string
	Manager  []string
	Readonly []string
}

// Allows проверяет, что роль role не ниже required.
// Неизвестная роль не даёт прав.
func Allows(role, required string) bool {
	w, ok := roleWeight[role]
	if !ok {
		return false
	}
	return w >= roleWeight[required]
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	wa := roleWeight[a]
	wb := roleWeight[b]
	if wa >= wb {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя на основе его групп IdP.
// Возвращает максимальную роль из всех совпадений.
// Если ни одна группа не совпала — возвращает пустую строку.
func MapGroupsToRole(groups []string, m GroupMapping) string {
	adminSet := toSet(m.Admin)
	managerSet := toSet(m.Manager)
	readonlySet := toSet(m.Readonly)

	var roles []string
	for _, g := range groups {
		if adminSet[g] {
			roles = append(roles, RoleAdmin)
		}
		if managerSet[g] {
			roles = append(roles, RoleManager)
		}
		if readonlySet[g] {
			roles = append(roles, RoleReadonly)
		}
	}

	return HighestRole(roles)
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
