package store

// Table names, one per sub-record category
const (
	tableCPU     = "cpu_metrics"
	tableMemory  = "memory_metrics"
	tableDisk    = "disk_metrics"
	tableNetwork = "network_metrics"
	tableSystem  = "system_info"
)

// schema holds the DDL applied by Migrate, in order
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cpu_metrics (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		total_cores INT NOT NULL,
		physical_cores INT NULL,
		total_cpu_usage DOUBLE NOT NULL,
		INDEX idx_cpu_metrics_timestamp (timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS memory_metrics (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		total_ram_mb BIGINT UNSIGNED NOT NULL,
		used_ram_mb BIGINT UNSIGNED NOT NULL,
		available_ram_mb BIGINT UNSIGNED NOT NULL,
		ram_usage DOUBLE NOT NULL,
		swap_total_mb BIGINT UNSIGNED NOT NULL,
		swap_used_mb BIGINT UNSIGNED NOT NULL,
		swap_usage DOUBLE NOT NULL,
		INDEX idx_memory_metrics_timestamp (timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS disk_metrics (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		total_disk_space_gb DOUBLE NOT NULL,
		used_disk_space_gb DOUBLE NOT NULL,
		free_disk_space_gb DOUBLE NOT NULL,
		percent_used VARCHAR(16) NOT NULL,
		INDEX idx_disk_metrics_timestamp (timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS network_metrics (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		interface VARCHAR(64) NOT NULL,
		bytes_sent BIGINT UNSIGNED NOT NULL,
		bytes_recv BIGINT UNSIGNED NOT NULL,
		packets_sent BIGINT UNSIGNED NOT NULL,
		packets_recv BIGINT UNSIGNED NOT NULL,
		errin BIGINT UNSIGNED NOT NULL,
		errout BIGINT UNSIGNED NOT NULL,
		dropin BIGINT UNSIGNED NOT NULL,
		dropout BIGINT UNSIGNED NOT NULL,
		INDEX idx_network_metrics_timestamp (timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS system_info (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		os VARCHAR(255) NULL,
		hostname VARCHAR(255) NULL,
		architecture VARCHAR(64) NULL,
		uptime_sec BIGINT UNSIGNED NULL,
		users INT NULL,
		processes INT NULL,
		INDEX idx_system_info_timestamp (timestamp)
	)`,
}
