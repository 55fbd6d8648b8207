package localstore

// The persisted key namespace is fixed and flat. Each key holds either a plain
// string or a JSON-serialized structure.
const (
	KeySetup           = "money_history_setup"
	KeyExpenses        = "money_history_expenses"
	KeyDebts           = "money_history_debts"
	KeyDeviceID        = "money_history_device_id"
	KeyDisplayName     = "money_history_display_name"
	KeySyncCode        = "money_history_sync_code"
	KeyGoalName        = "money_history_goal"
	KeyTheme           = "money_history_theme"
	KeyLang            = "money_history_lang"
	KeyCurrency        = "money_history_currency"
	KeyAppLockPin      = "money_history_app_lock_pin"
	KeyAppLockEnabled  = "money_history_app_lock_enabled"
	KeyLastHourlySync  = "money_history_last_hourly_sync"
	KeyLastSyncPayload = "money_history_last_sync_payload"
	KeyProfileImage    = "money_history_profile_image"
	KeyRemoteSyncCode  = "money_history_remote_has_sync_code"
	KeyRevision        = "money_history_revision"
	KeySchemaVersion   = "money_history_schema_version"
)
